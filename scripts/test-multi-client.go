package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/projector"
)

const (
	relayAddr     = "localhost:3001"
	numClients    = 6  // Concurrent projector clients
	numConcurrent = 10 // Gestures created concurrently over REST
	settleTimeout = 5 * time.Second
)

type TestResult struct {
	Name     string
	ID       string
	Success  bool
	Duration time.Duration
	Error    error
}

func main() {
	log.Println("🧪 Multi-Client Convergence Test")
	log.Println("================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Phase 1: Connect clients
	log.Printf("\n📋 Phase 1: Connecting %d clients...", numClients)
	clients := connectClients(ctx, numClients)
	log.Printf("✅ Connected %d clients", len(clients))

	// Phase 2: Concurrent mutations
	log.Printf("\n📋 Phase 2: Creating %d gestures concurrently...", numConcurrent)
	results := createConcurrentGestures(numConcurrent)

	// Phase 3: Analyze results
	log.Println("\n📋 Phase 3: Analyzing results...")
	analyzeResults(results)

	// Phase 4: Convergence
	log.Println("\n📋 Phase 4: Checking snapshot convergence...")
	checkConvergence(clients)

	// Phase 5: Cleanup
	log.Println("\n📋 Phase 5: Deleting test gestures...")
	cleanup(results)

	log.Println("\n🎉 Multi-Client Test Complete!")
}

func connectClients(ctx context.Context, count int) []*projector.Client {
	clients := make([]*projector.Client, 0, count)
	for i := 0; i < count; i++ {
		c := projector.NewClient(projector.ClientConfig{URL: "ws://" + relayAddr + "/ws"}, projector.New())
		go func() { _ = c.Run(ctx) }()
		clients = append(clients, c)
	}

	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		connected := 0
		for _, c := range clients {
			if c.Projector().View().Connected {
				connected++
			}
		}
		if connected == count {
			return clients
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Fatalf("❌ Not all clients connected within %v", settleTimeout)
	return nil
}

func createConcurrentGestures(count int) []TestResult {
	results := make([]TestResult, count)
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			name := fmt.Sprintf("load-test-%d-%d", time.Now().UnixNano()%100000, idx)
			start := time.Now()
			id, err := addGesture(name)
			results[idx] = TestResult{
				Name:     name,
				ID:       id,
				Success:  err == nil,
				Duration: time.Since(start),
				Error:    err,
			}
			if err == nil {
				log.Printf("  ✓ Gesture %d: %s (%s)", idx, name, id)
			}
		}(i)
	}

	wg.Wait()
	return results
}

func addGesture(name string) (string, error) {
	body, _ := json.Marshal(map[string]string{"name": name, "action": "none"})
	resp, err := http.Post("http://"+relayAddr+"/api/gestures", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func analyzeResults(results []TestResult) {
	successful := 0
	failed := 0
	var totalDuration time.Duration

	for _, r := range results {
		if r.Success {
			successful++
			totalDuration += r.Duration
		} else {
			failed++
			log.Printf("  ❌ %s failed: %v", r.Name, r.Error)
		}
	}

	var avgDuration time.Duration
	if successful > 0 {
		avgDuration = totalDuration / time.Duration(successful)
	}

	log.Printf("\n📈 Results Summary:")
	log.Printf("  Total Requests: %d", len(results))
	log.Printf("  Successful: %d", successful)
	log.Printf("  Failed: %d", failed)
	log.Printf("  Success Rate: %.1f%%", float64(successful)/float64(len(results))*100)
	log.Printf("  Avg Duration: %v", avgDuration)
}

func gestureKeys(view projector.View) string {
	ids := make([]string, 0, len(view.Gestures))
	for id := range view.Gestures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func checkConvergence(clients []*projector.Client) {
	deadline := time.Now().Add(settleTimeout)
	for {
		views := make(map[string]int)
		for _, c := range clients {
			views[gestureKeys(c.Projector().View())]++
		}
		if len(views) == 1 {
			for _, n := range views {
				log.Printf("  ✅ All %d clients hold the same gesture map", n)
			}
			return
		}
		if time.Now().After(deadline) {
			log.Printf("  ❌ Convergence FAILED: %d distinct gesture maps across clients", len(views))
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func cleanup(results []TestResult) {
	for _, r := range results {
		if !r.Success {
			continue
		}
		req, _ := http.NewRequest(http.MethodDelete, "http://"+relayAddr+"/api/gestures/"+r.ID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Printf("  ⚠️  Error deleting %s: %v", r.ID, err)
			continue
		}
		_ = resp.Body.Close()
	}
	log.Printf("  ✓ Removed %d gestures", countSuccessful(results))
}

func countSuccessful(results []TestResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
