package report

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// SARIF 2.1.0 constants.
const (
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          map[string]string `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	Physical sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           *sarifRegion  `json:"region,omitempty"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

// SARIFWriter outputs the findings of a report as a SARIF 2.1.0 log with one
// run per audit. Tool failures become tool execution notifications.
type SARIFWriter struct {
	baseWriter
	version string
}

// NewSARIFWriter creates a SARIFWriter that outputs to the given writer.
func NewSARIFWriter(output io.Writer, version string) *SARIFWriter {
	return &SARIFWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}
}

// Write outputs report in SARIF format.
func (w *SARIFWriter) Write(report *model.AuditReport) (int, error) {
	data, err := json.MarshalIndent(w.build(report), "", "  ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

func (w *SARIFWriter) build(report *model.AuditReport) sarifLog {
	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:    config.AppName,
			Version: w.version,
		}},
		Results: []sarifResult{},
	}

	seenRules := make(map[string]bool)
	var notes []sarifNotification

	for _, fr := range report.Results {
		if fr == nil {
			continue
		}
		uri := filepath.ToSlash(fr.DisplayPath(report.Target))
		for _, tr := range []*model.ToolResult{fr.Slither, fr.Solhint} {
			if tr == nil {
				continue
			}
			if tr.HasError() {
				notes = append(notes, sarifNotification{
					Level:   "error",
					Message: sarifMessage{Text: tr.Tool + " failed on " + uri + ": " + tr.Error},
				})
				continue
			}
			if tr.Warning != "" {
				notes = append(notes, sarifNotification{
					Level:   "warning",
					Message: sarifMessage{Text: tr.Tool + " on " + uri + ": " + tr.Warning},
				})
			}
			for _, f := range tr.All() {
				ruleID := sarifRuleID(f)
				if !seenRules[ruleID] {
					seenRules[ruleID] = true
					run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
						ID:               ruleID,
						ShortDescription: sarifMessage{Text: ruleID},
					})
				}
				run.Results = append(run.Results, w.result(f, ruleID, uri))
			}
		}
	}

	run.Invocations = []sarifInvocation{{
		ExecutionSuccessful:        report.Summary.FilesWithErrors == 0,
		ToolExecutionNotifications: notes,
	}}

	return sarifLog{
		Schema:  SARIFSchema,
		Version: SARIFVersion,
		Runs:    []sarifRun{run},
	}
}

func (w *SARIFWriter) result(f model.Finding, ruleID, uri string) sarifResult {
	var region *sarifRegion
	if f.Line > 0 {
		region = &sarifRegion{StartLine: f.Line}
	}
	return sarifResult{
		RuleID:  ruleID,
		Level:   model.SeverityLevel(f.Severity).String(),
		Message: sarifMessage{Text: collapseSpace(f.Message)},
		Locations: []sarifLocation{{Physical: sarifPhysical{
			ArtifactLocation: sarifArtifact{URI: uri},
			Region:           region,
		}}},
		PartialFingerprints: map[string]string{"somniaFingerprint/v1": f.Fingerprint},
		Properties: map[string]string{
			"tool":     f.Tool,
			"category": string(f.Category),
			"severity": f.Severity,
		},
	}
}

// sarifRuleID namespaces the rule by tool, e.g. "slither/reentrancy-eth".
func sarifRuleID(f model.Finding) string {
	rule := f.Rule
	if rule == "" {
		rule = string(f.Category)
	}
	return f.Tool + "/" + rule
}
