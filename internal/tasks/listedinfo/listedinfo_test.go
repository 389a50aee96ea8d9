package listedinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/store/memstore"
)

func TestResolveDateRange(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	from, to, err := resolveDateRange(kwargs{PeriodType: "yesterday"}, now)
	if err != nil {
		t.Fatalf("resolve yesterday: %v", err)
	}
	if from.Format("2006-01-02") != "2026-07-29" || to.Format("2006-01-02") != "2026-07-29" {
		t.Errorf("yesterday range = %s..%s, want 2026-07-29..2026-07-29", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	from, to, err = resolveDateRange(kwargs{PeriodType: "custom", FromDate: "2026-07-01", ToDate: "2026-07-03"}, now)
	if err != nil {
		t.Fatalf("resolve custom: %v", err)
	}
	if from.Format("2006-01-02") != "2026-07-01" || to.Format("2006-01-02") != "2026-07-03" {
		t.Errorf("custom range = %s..%s, want 2026-07-01..2026-07-03", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	if _, _, err := resolveDateRange(kwargs{PeriodType: "custom", FromDate: "2026-07-05", ToDate: "2026-07-01"}, now); err == nil {
		t.Error("expected error when to_date precedes from_date")
	}
}

func TestParseKwargs_RejectsInvalidCode(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"period_type": "yesterday", "codes": []string{"12"}})
	if _, err := parseKwargs(raw); err == nil {
		t.Error("expected error for a code that is not 4 characters")
	}
}

func TestTask_Run_FetchesAndUpserts(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"info":[{"Code":"1301","CompanyName":"Test Co","MarketCode":"0111","MarketCodeName":"Prime"}]}`)
	}))
	defer server.Close()

	listedStore := memstore.NewListedInfoStore()
	task := New(server.Client(), server.URL, "", nil, nil, listedStore, nil)

	kwargsRaw, _ := json.Marshal(map[string]any{"period_type": "custom", "from_date": "2026-07-01", "to_date": "2026-07-02"})
	result, err := task.Run(context.Background(), nil, kwargsRaw)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var parsed taskResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed.Fetched != 2 || parsed.Saved != 2 {
		t.Errorf("result = %+v, want fetched=2 saved=2 (one record/day over two days)", parsed)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2 (one GET per date)", requests.Load())
	}

	all := listedStore.All()
	if len(all) != 2 {
		t.Fatalf("stored records = %d, want 2 (one row per distinct (date, code))", len(all))
	}
}

func TestTask_Run_FetchesOncePerCodeWhenMultipleCodesGiven(t *testing.T) {
	var codesSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		codesSeen = append(codesSeen, code)
		fmt.Fprintf(w, `{"info":[{"Code":%q,"CompanyName":"Co %s","MarketCode":"0111","MarketCodeName":"Prime"}]}`, code, code)
	}))
	defer server.Close()

	listedStore := memstore.NewListedInfoStore()
	task := New(server.Client(), server.URL, "", nil, nil, listedStore, nil)

	kwargsRaw, _ := json.Marshal(map[string]any{
		"period_type": "custom", "from_date": "2026-07-01", "to_date": "2026-07-01",
		"codes": []string{"1301", "1302"},
	})
	result, err := task.Run(context.Background(), nil, kwargsRaw)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var parsed taskResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed.Fetched != 2 || parsed.Saved != 2 {
		t.Errorf("result = %+v, want fetched=2 saved=2 (one record per code)", parsed)
	}
	if len(codesSeen) != 2 {
		t.Fatalf("requests = %d, want 2 (one GET per code)", len(codesSeen))
	}
	want := map[string]bool{"1301": true, "1302": true}
	for _, c := range codesSeen {
		if !want[c] {
			t.Errorf("unexpected code %q in request, want one of %v", c, want)
		}
		delete(want, c)
	}
	if len(want) != 0 {
		t.Errorf("codes never requested: %v", want)
	}
}

func TestParseResponse_FiltersByMarket(t *testing.T) {
	raw := []byte(`{"info":[
		{"Code":"1301","CompanyName":"Prime Co","MarketCode":"0111","MarketCodeName":"Prime"},
		{"Code":"1302","CompanyName":"Standard Co","MarketCode":"0112","MarketCodeName":"Standard"}
	]}`)

	records, err := parseResponse("2026-07-01", raw, "Prime")
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(records) != 1 || records[0].Code != "1301" {
		t.Fatalf("records = %+v, want only the Prime-market record", records)
	}

	all, err := parseResponse("2026-07-01", raw, "")
	if err != nil {
		t.Fatalf("parseResponse (no filter): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("records = %+v, want both records when market is empty", all)
	}
}

func TestTask_Run_AuthErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	listedStore := memstore.NewListedInfoStore()
	task := New(server.Client(), server.URL, "", nil, nil, listedStore, nil)

	kwargsRaw, _ := json.Marshal(map[string]any{"period_type": "yesterday"})
	if _, err := task.Run(context.Background(), nil, kwargsRaw); err == nil {
		t.Fatal("expected auth error to fail the task")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (auth errors must not be retried)", got)
	}
}
