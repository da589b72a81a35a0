package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

type authorizeRequest struct {
	Reference          string `json:"reference"`
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	CaptureMethod      string `json:"capture_method"`
	AuthenticationType string `json:"authentication_type"`
	Network            string `json:"network,omitempty"`
}

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Authorize endpoint. The last two digits of amount_cents select the
	// behavior, so one server instance covers every test scenario:
	//   ..02 -> 402 decline          ..03 -> 500 server fault
	//   ..04 -> slow 200 (3s delay)  ..05 -> never responds (timeout)
	//   anything else -> 200 charged
	http.HandleFunc("/v1/authorize", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req authorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logRequest(r, count, 400)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"code":     "INVALID_REQUEST",
				"message":  "malformed authorize request",
				"declined": false,
			})
			return
		}

		switch req.AmountCents % 100 {
		case 2:
			logRequest(r, count, 402)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]any{
				"code":           "CARD_DECLINED",
				"message":        "insufficient funds",
				"transaction_id": fmt.Sprintf("mock_txn_%d", count),
				"declined":       true,
			})
			return

		case 3:
			logRequest(r, count, 500)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
			return

		case 4:
			time.Sleep(3 * time.Second)

		case 5:
			// Hold the connection open well past any sane client timeout.
			time.Sleep(120 * time.Second)
			return
		}

		logRequest(r, count, 200)

		status := "charged"
		if req.AuthenticationType == "three_ds" {
			status = "pending"
		}

		resp := map[string]any{
			"transaction_id": fmt.Sprintf("mock_txn_%d", count),
			"status":         status,
			"reference":      req.Reference,
		}
		if status == "pending" {
			resp["redirect_url"] = fmt.Sprintf("http://localhost:%s/v1/3ds/%d", port, count)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})

	// Stats endpoint — shows request count
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock connector starting on :%s", port)
	log.Printf("  POST /v1/authorize  -> behavior by amount_cents %% 100")
	log.Printf("  GET  /stats         -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(r *http.Request, count int64, status int) {
	fmt.Printf("[#%d] %s %s -> %d | connector=%s flow=%s corr=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		r.Header.Get("X-Connector"),
		r.Header.Get("X-Flow"),
		truncate(r.Header.Get("X-Correlation-ID"), 8),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
