package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ReportedStages are the stages whose statistics are reported.
var ReportedStages = []Stage{StageAccountOpening, StageTransfer}

// Report is the serializable form of a Result.
type Report struct {
	RunID         string            `json:"run_id,omitempty"`
	Identity      string            `json:"identity"`
	Mint          string            `json:"mint"`
	SourceAccount string            `json:"source_account"`
	NumKeypairs   int               `json:"num_keypairs"`
	MintSeconds   float64           `json:"mint_seconds"`
	FundSeconds   float64           `json:"fund_seconds"`
	Stages        map[Stage]Summary `json:"stages"`
	Started       time.Time         `json:"started"`
	Finished      time.Time         `json:"finished"`
}

// NewReport flattens res.
func NewReport(runID string, res *Result) Report {
	r := Report{
		RunID:         runID,
		Identity:      res.Identity.String(),
		Mint:          res.Mint.String(),
		SourceAccount: res.SourceAccount.String(),
		NumKeypairs:   len(res.Accounts),
		Stages:        make(map[Stage]Summary, len(res.Summaries)),
		Started:       res.Started,
		Finished:      res.Finished,
	}
	if s := res.Samples[StageMintCreation]; len(s) > 0 {
		r.MintSeconds = s[0].Duration.Seconds()
	}
	if s := res.Samples[StageFunding]; len(s) > 0 {
		r.FundSeconds = s[0].Duration.Seconds()
	}
	for stage, summary := range res.Summaries {
		r.Stages[stage] = summary
	}
	return r
}

// WriteText writes one statistics line per reported stage.
func WriteText(w io.Writer, res *Result) error {
	if res == nil || len(res.Summaries) == 0 {
		return fmt.Errorf("no results to report")
	}
	for _, stage := range ReportedStages {
		summary, ok := res.Summaries[stage]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(w, summary.Line(stage)); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}
