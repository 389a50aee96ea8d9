package listedinfo

import (
	"encoding/json"
	"fmt"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// apiRecord mirrors one entry of the external API's "info" array.
type apiRecord struct {
	Code         string `json:"Code"`
	CompanyName  string `json:"CompanyName"`
	MarketCode   string `json:"MarketCode"`
	MarketName   string `json:"MarketCodeName"`
	Sector17Code string `json:"Sector17Code"`
	Sector33Code string `json:"Sector33Code"`
}

type apiResponse struct {
	Info []apiRecord `json:"info"`
}

// parseResponse implements spec §4.8 step 6's validation + mapping. When
// market is non-empty, records whose market code and market name both
// differ from it are dropped; the external API has no market query
// parameter, so this filter applies client-side.
func parseResponse(date string, raw []byte, market string) ([]model.ListedInfo, error) {
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("listedinfo: parse response for %s: %w", date, err)
	}

	records := make([]model.ListedInfo, 0, len(resp.Info))
	for _, rec := range resp.Info {
		if len(rec.Code) != 4 {
			return nil, fmt.Errorf("listedinfo: record with invalid code %q for %s", rec.Code, date)
		}
		if rec.CompanyName == "" {
			return nil, fmt.Errorf("listedinfo: record %s/%s missing company_name", date, rec.Code)
		}
		if market != "" && rec.MarketCode != market && rec.MarketName != market {
			continue
		}
		records = append(records, model.ListedInfo{
			Date:         date,
			Code:         rec.Code,
			CompanyName:  rec.CompanyName,
			MarketCode:   rec.MarketCode,
			MarketName:   rec.MarketName,
			SectorCode17: rec.Sector17Code,
			SectorCode33: rec.Sector33Code,
		})
	}
	return records, nil
}

// toAPIRecords converts persisted records back into the external API's
// wire shape, used to rebuild an archival payload that reflects exactly
// what was fetched and filtered for a date (see Task.fetchDate).
func toAPIRecords(records []model.ListedInfo) []apiRecord {
	out := make([]apiRecord, 0, len(records))
	for _, r := range records {
		out = append(out, apiRecord{
			Code:         r.Code,
			CompanyName:  r.CompanyName,
			MarketCode:   r.MarketCode,
			MarketName:   r.MarketName,
			Sector17Code: r.SectorCode17,
			Sector33Code: r.SectorCode33,
		})
	}
	return out
}
