// Benchmark replays PaySim fraud data through Kestrel's batch endpoint.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080
//
// Rows are grouped into batches and posted to POST /analyze. A transaction
// counts as flagged when its scorecard lands in the EDD or SMR tier (or only
// SMR with -smr-only); flags are compared against the isFraud label.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PaySim steps are hours from the start of the simulation.
var simulationStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type labeledRecord struct {
	record  domain.TransactionRecord
	isFraud bool
}

// Tally is the confusion matrix plus throughput counters.
type Tally struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	Quarantined int64
	Errors      int64
	Batches     int64
	BatchMs     int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	batchSize := flag.Int("batch", 500, "Transactions per /analyze call")
	workers := flag.Int("workers", 4, "Concurrent batch submitters")
	smrOnly := flag.Bool("smr-only", false, "Count only SMR scorecards as flagged")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	records, err := readPaySim(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions from %s\n", len(records), *csvPath)

	start := time.Now()
	tally := run(records, *baseURL, *batchSize, *workers, *smrOnly)
	printResults(tally, len(records), time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPaySim(path string, limit int) ([]labeledRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(name)] = i
	}
	for _, required := range []string{"step", "type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []labeledRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		step, _ := strconv.Atoi(row[col["step"]])
		txType := strings.ToLower(row[col["type"]])
		channel := "online"
		if txType == "cash_out" || txType == "cash_in" {
			txType = "cash"
			channel = "branch"
		}

		out = append(out, labeledRecord{
			record: domain.TransactionRecord{
				ID:        uuid.NewString(),
				Type:      txType,
				FromParty: row[col["nameorig"]],
				ToParty:   row[col["namedest"]],
				Amount:    row[col["amount"]],
				Currency:  "USD",
				Timestamp: simulationStart.Add(time.Duration(step) * time.Hour).Format(time.RFC3339),
				Channel:   channel,
			},
			isFraud: row[col["isfraud"]] == "1",
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func run(records []labeledRecord, baseURL string, batchSize, workers int, smrOnly bool) *Tally {
	tally := &Tally{}
	work := make(chan []labeledRecord, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}
			for batch := range work {
				started := time.Now()
				result, err := analyze(client, baseURL, batch)
				atomic.AddInt64(&tally.BatchMs, time.Since(started).Milliseconds())
				atomic.AddInt64(&tally.Batches, 1)
				if err != nil {
					atomic.AddInt64(&tally.Errors, int64(len(batch)))
					fmt.Printf("batch failed: %v\n", err)
					continue
				}
				tally.add(batch, result, smrOnly)
			}
		}()
	}

	for i := 0; i < len(records); i += batchSize {
		work <- records[i:min(i+batchSize, len(records))]
	}
	close(work)
	wg.Wait()
	return tally
}

func analyze(client *http.Client, baseURL string, batch []labeledRecord) (*domain.BatchResult, error) {
	payload := struct {
		Transactions []domain.TransactionRecord `json:"transactions"`
	}{Transactions: make([]domain.TransactionRecord, len(batch))}
	for i, lr := range batch {
		payload.Transactions[i] = lr.record
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(baseURL+"/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 503 still carries the scored result when only persistence failed.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		var failed struct {
			Error  string              `json:"error"`
			Result *domain.BatchResult `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failed); err != nil || failed.Result == nil {
			return nil, fmt.Errorf("status 503: %s", failed.Error)
		}
		return failed.Result, nil
	}

	var result domain.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (t *Tally) add(batch []labeledRecord, result *domain.BatchResult, smrOnly bool) {
	flagged := make(map[string]bool, len(result.Scorecards))
	for _, sc := range result.Scorecards {
		flagged[sc.TransactionID] = sc.Tier == domain.TierSMR || (!smrOnly && sc.Tier == domain.TierEDD)
	}
	atomic.AddInt64(&t.Quarantined, int64(len(result.Quarantined)))

	for _, lr := range batch {
		predicted, scored := flagged[lr.record.ID]
		if !scored {
			continue
		}
		switch {
		case predicted && lr.isFraud:
			atomic.AddInt64(&t.TruePositives, 1)
		case predicted:
			atomic.AddInt64(&t.FalsePositives, 1)
		case lr.isFraud:
			atomic.AddInt64(&t.FalseNegatives, 1)
		default:
			atomic.AddInt64(&t.TrueNegatives, 1)
		}
	}
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(t *Tally, total int, duration time.Duration) {
	fmt.Println()
	fmt.Println("BENCHMARK RESULTS")
	fmt.Println()
	fmt.Printf("  Transactions:  %d\n", total)
	fmt.Printf("  Batches:       %d\n", t.Batches)
	fmt.Printf("  Quarantined:   %d\n", t.Quarantined)
	fmt.Printf("  Errors:        %d\n", t.Errors)

	fmt.Println()
	fmt.Println("                 Flagged   Not flagged")
	fmt.Printf("  Fraud        %9d %13d\n", t.TruePositives, t.FalseNegatives)
	fmt.Printf("  Legitimate   %9d %13d\n", t.FalsePositives, t.TrueNegatives)

	precision := ratio(t.TruePositives, t.TruePositives+t.FalsePositives)
	recall := ratio(t.TruePositives, t.TruePositives+t.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	fmt.Println()
	fmt.Printf("  Precision:  %.4f\n", precision)
	fmt.Printf("  Recall:     %.4f\n", recall)
	fmt.Printf("  F1-Score:   %.4f\n", f1)

	fmt.Println()
	fmt.Printf("  Duration:          %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Avg batch latency: %.1f ms\n", ratio(t.BatchMs, t.Batches))
	if duration > 0 {
		fmt.Printf("  Throughput:        %.1f tx/sec\n", float64(total)/duration.Seconds())
	}
	fmt.Println()
}
