package atlassian

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Product identifies a product line
type Product string

const (
	Confluence Product = "confluence"
	Jira       Product = "jira"
)

// ParseProduct validates a product line name
func ParseProduct(s string) (Product, error) {
	switch p := Product(strings.ToLower(s)); p {
	case Confluence, Jira:
		return p, nil
	default:
		return "", fmt.Errorf("unknown product line %q", s)
	}
}

// JobHandle identifies a started job. TaskID is empty for Confluence,
// which tracks a single backup per site.
type JobHandle struct {
	Product Product
	TaskID  string
}

// JobStatus is one progress report. Finished is set once the terminal
// field appears in the response, even with an empty value; Terminal then
// holds the download path fragment.
type JobStatus struct {
	Product     Product
	State       string
	Progress    int
	Description string
	Terminal    string
	Finished    bool
	Failed      bool
	Raw         map[string]json.RawMessage
}

// Done reports whether the terminal field was present
func (s JobStatus) Done() bool {
	return s.Finished
}

// startPayload is the vendor request body; cbAttachments is the vendor's
// name for "include attachments".
type startPayload struct {
	IncludeAttachments bool   `json:"cbAttachments"`
	ExportToCloud      string `json:"exportToCloud"`
}

func newStartPayload(includeAttachments bool) startPayload {
	return startPayload{IncludeAttachments: includeAttachments, ExportToCloud: "true"}
}

// productLine captures what differs between the two vendor APIs
type productLine interface {
	startPath() string
	progressPath(h JobHandle) string
	handleFromStart(body map[string]json.RawMessage) (JobHandle, error)
	parseStatus(raw map[string]json.RawMessage) JobStatus
	downloadPath(terminal string) string
}

func lineFor(p Product) (productLine, error) {
	switch p {
	case Confluence:
		return confluenceLine{}, nil
	case Jira:
		return jiraLine{}, nil
	default:
		return nil, fmt.Errorf("unknown product line %q", p)
	}
}

type confluenceLine struct{}

func (confluenceLine) startPath() string { return "/wiki/rest/obm/1.0/runbackup" }

func (confluenceLine) progressPath(JobHandle) string { return "/wiki/rest/obm/1.0/getprogress" }

func (confluenceLine) handleFromStart(map[string]json.RawMessage) (JobHandle, error) {
	return JobHandle{Product: Confluence}, nil
}

func (confluenceLine) parseStatus(raw map[string]json.RawMessage) JobStatus {
	return JobStatus{
		Product:     Confluence,
		State:       stringField(raw, "currentStatus"),
		Progress:    percentField(raw, "alternativePercentage"),
		Description: stringField(raw, "currentStatus"),
		Terminal:    stringField(raw, "fileName"),
		Finished:    hasField(raw, "fileName"),
		Raw:         raw,
	}
}

func (confluenceLine) downloadPath(terminal string) string {
	return "/wiki/download/" + strings.TrimPrefix(terminal, "/")
}

type jiraLine struct{}

func (jiraLine) startPath() string { return "/rest/backup/1/export/runbackup" }

func (jiraLine) progressPath(h JobHandle) string {
	return "/rest/backup/1/export/getProgress?taskId=" + url.QueryEscape(h.TaskID)
}

func (jiraLine) handleFromStart(body map[string]json.RawMessage) (JobHandle, error) {
	id := stringField(body, "taskId")
	if id == "" {
		return JobHandle{}, fmt.Errorf("response has no taskId")
	}
	return JobHandle{Product: Jira, TaskID: id}, nil
}

func (jiraLine) parseStatus(raw map[string]json.RawMessage) JobStatus {
	state := stringField(raw, "status")
	return JobStatus{
		Product:     Jira,
		State:       state,
		Progress:    percentField(raw, "progress"),
		Description: stringField(raw, "description"),
		Terminal:    stringField(raw, "result"),
		Finished:    hasField(raw, "result"),
		Failed:      strings.EqualFold(state, "FAILED"),
		Raw:         raw,
	}
}

func (jiraLine) downloadPath(terminal string) string {
	return "/plugins/servlet/" + strings.TrimPrefix(terminal, "/")
}

func hasField(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}

// stringField returns a string or number field as text
func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}

	return ""
}

// percentField accepts 42, 42.5, "42" and "42%"
func percentField(raw map[string]json.RawMessage, key string) int {
	s := strings.TrimSpace(strings.TrimSuffix(stringField(raw, key), "%"))
	if s == "" {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
