package listedinfo

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseKwargs(raw json.RawMessage) (kwargs, error) {
	var kw kwargs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &kw); err != nil {
			return kwargs{}, fmt.Errorf("listedinfo: parse kwargs: %w", err)
		}
	}
	switch kw.PeriodType {
	case "yesterday", "7days", "30days", "custom":
	default:
		return kwargs{}, fmt.Errorf("listedinfo: invalid period_type %q", kw.PeriodType)
	}
	if kw.PeriodType == "custom" {
		if kw.FromDate == "" || kw.ToDate == "" {
			return kwargs{}, fmt.Errorf("listedinfo: period_type=custom requires from_date and to_date")
		}
	}
	for _, code := range kw.Codes {
		if len(code) != 4 {
			return kwargs{}, fmt.Errorf("listedinfo: invalid code %q, want 4 characters", code)
		}
	}
	return kw, nil
}

// resolveDateRange implements spec §4.8 step 2.
func resolveDateRange(kw kwargs, now time.Time) (from, to time.Time, err error) {
	today := now.UTC().Truncate(24 * time.Hour)

	switch kw.PeriodType {
	case "yesterday":
		from = today.AddDate(0, 0, -1)
		to = from
	case "7days":
		from = today.AddDate(0, 0, -7)
		to = today
	case "30days":
		from = today.AddDate(0, 0, -30)
		to = today
	case "custom":
		from, err = time.Parse("2006-01-02", kw.FromDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("listedinfo: invalid from_date %q: %w", kw.FromDate, err)
		}
		to, err = time.Parse("2006-01-02", kw.ToDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("listedinfo: invalid to_date %q: %w", kw.ToDate, err)
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("listedinfo: to_date %q precedes from_date %q", kw.ToDate, kw.FromDate)
		}
	}
	return from, to, nil
}
