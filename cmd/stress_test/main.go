package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type options struct {
	baseURL  string
	secret   string
	subject  string
	requests int
}

type item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	OwnerID  string `json:"owner_id"`
}

type failure struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Fires concurrent updates at a single item on a running server and checks
// that every update either lands or fails with exhausted conflict retries.
func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "stress_test",
		Short:        "Race concurrent item updates against a running catalog server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8100", "catalog server base URL")
	cmd.Flags().StringVar(&opts.secret, "secret", os.Getenv("JWT_SECRET_KEY"), "HS256 signing secret")
	cmd.Flags().StringVar(&opts.subject, "subject", "1", "merchant user id placed in the token")
	cmd.Flags().IntVar(&opts.requests, "requests", 50, "number of concurrent updates")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": opts.subject,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(opts.secret))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}

	// Create the contested item
	var created item
	status, err := call(ctx, client, http.MethodPost, opts.baseURL+"/item/", token, map[string]any{
		"name":        "stress-" + uuid.NewString()[:8],
		"description": "stress test item",
		"quantity":    0,
		"price":       1.0,
	}, &created)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create item: unexpected status %d", status)
	}

	// Spawn concurrent updates
	var (
		successCount   atomic.Int32
		exhaustedCount atomic.Int32
		otherCount     atomic.Int32
		mu             sync.Mutex
		written        []int
		wg             sync.WaitGroup
	)
	start := time.Now()

	for i := 1; i <= opts.requests; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()

			var fail failure
			status, err := call(ctx, client, http.MethodPut, opts.baseURL+"/item/", token, map[string]any{
				"id":       created.ID,
				"quantity": quantity,
			}, &fail)
			switch {
			case err == nil && status == http.StatusOK:
				successCount.Add(1)
				mu.Lock()
				written = append(written, quantity)
				mu.Unlock()
			case err == nil && status == http.StatusBadRequest && fail.Error == "conflict retries exhausted: item was modified concurrently":
				exhaustedCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	var list struct {
		Items []item `json:"items"`
	}
	if _, err := call(ctx, client, http.MethodGet, fmt.Sprintf("%s/items/?item_ids=%d", opts.baseURL, created.ID), token, nil, &list); err != nil {
		return err
	}
	if len(list.Items) != 1 {
		return fmt.Errorf("expected item %d to exist, got %d items", created.ID, len(list.Items))
	}
	final := list.Items[0]

	success := successCount.Load()
	exhausted := exhaustedCount.Load()
	other := otherCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Item:               %d (%s)\n", created.ID, created.Name)
	fmt.Printf("Total Updates:      %d\n", opts.requests)
	fmt.Printf("Successful:         %d\n", success)
	fmt.Printf("Retries Exhausted:  %d\n", exhausted)
	fmt.Printf("Other Failures:     %d\n", other)
	fmt.Printf("Final Quantity:     %d\n", final.Quantity)
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	if other == 0 && int(success+exhausted) == opts.requests {
		fmt.Println("PASS: every update either succeeded or exhausted its retries")
	} else {
		fmt.Printf("FAIL: %d updates failed for another reason\n", other)
	}

	if slices.Contains(written, final.Quantity) {
		fmt.Println("PASS: final quantity was written by a successful update")
	} else {
		fmt.Printf("FAIL: final quantity %d matches no successful update\n", final.Quantity)
	}
	return nil
}

func call(ctx context.Context, client *http.Client, method, url, token string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}
