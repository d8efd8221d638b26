package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps/notify"
)

func TestParseRecipient(t *testing.T) {
	tests := []struct {
		name         string
		spec         string
		wantProtocol string
		wantAddress  string
		wantError    bool
	}{
		{"email recipient", "email:ops@example.org", "email", "ops@example.org", false},
		{"http recipient", "http:https://ntfy.example.org/pipeline", "http", "https://ntfy.example.org/pipeline", false},
		{"missing protocol", "ops@example.org", "", "", true},
		{"unknown protocol", "sms:+61000000", "", "", true},
		{"empty address", "email:", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := notify.ParseRecipient(tc.spec)
			if tc.wantError {
				if r.Error == "" {
					t.Fatalf("expected recorded parse error for %q", tc.spec)
				}
				return
			}
			if r.Error != "" {
				t.Fatalf("unexpected parse error: %s", r.Error)
			}
			if r.Protocol != tc.wantProtocol || r.Address != tc.wantAddress {
				t.Fatalf("parsed %q as %s/%s", tc.spec, r.Protocol, r.Address)
			}
		})
	}
}

func TestNotifyListDeduplicates(t *testing.T) {
	list := notify.NewNotifyList(
		"email:ops@example.org",
		"email:owner@example.org",
		"email:ops@example.org",
	)
	if list.Len() != 2 {
		t.Fatalf("expected 2 unique recipients, got %d", list.Len())
	}
}

func TestNotifierDeliversOverHTTP(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := notify.NewNotifier("tideflow@localhost", "localhost", 25, 5*time.Second, nil)
	list := notify.NewNotifyList("http:" + server.URL)

	report := notify.Report{
		PipelineName: "moorings",
		InputFile:    "/incoming/sample.nc",
		HandlerID:    "abc-123",
		Result:       "success",
		Elapsed:      1500 * time.Millisecond,
		Files:        pipefile.NewCollection(pipefile.New("/incoming/sample.nc")),
	}
	msg := notify.Message{Subject: report.Subject(), Body: report.Body()}
	if err := notifier.Notify(context.Background(), list, msg); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if !list.AllSent() {
		t.Fatalf("expected delivery, failures: %v", list.Failed())
	}
	if gotTitle != "[moorings] success: /incoming/sample.nc" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotBody, "sample.nc") {
		t.Fatalf("body missing file table:\n%s", gotBody)
	}
}

func TestNotifierRecordsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic unknown", http.StatusNotFound)
	}))
	defer server.Close()

	notifier := notify.NewNotifier("tideflow@localhost", "localhost", 25, 5*time.Second, nil)
	list := notify.NewNotifyList("http:" + server.URL)

	if err := notifier.Notify(context.Background(), list, notify.Message{Subject: "s", Body: "b"}); err != nil {
		t.Fatalf("delivery failure must be recorded, not returned: %v", err)
	}
	failed := list.Failed()
	if len(failed) != 1 {
		t.Fatalf("expected one failed recipient, got %d", len(failed))
	}
	if !strings.Contains(failed[0].Error, "404") {
		t.Fatalf("expected status in recorded error, got %q", failed[0].Error)
	}
}

func TestNotifierSkipsInvalidRecipient(t *testing.T) {
	notifier := notify.NewNotifier("tideflow@localhost", "localhost", 25, time.Second, nil)
	list := notify.NewNotifyList("sms:+61000000")

	if err := notifier.Notify(context.Background(), list, notify.Message{Subject: "s", Body: "b"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if list.AllSent() {
		t.Fatal("invalid recipient must not count as sent")
	}
	if got := list.Recipients()[0].Error; !strings.Contains(got, "unknown protocol") {
		t.Fatalf("expected parse error preserved, got %q", got)
	}
}

func TestReportBodyIncludesErrorAndOutcomes(t *testing.T) {
	f := pipefile.New("/incoming/bad.nc")
	f.SetCheckResult(pipefile.CheckResult{Compliant: false, Errors: true})

	report := notify.Report{
		PipelineName: "moorings",
		InputFile:    "/incoming/bad.nc",
		HandlerID:    "abc-123",
		Result:       "failed",
		Error:        "system error: storage unreachable",
		Elapsed:      time.Second,
		Files:        pipefile.NewCollection(f),
	}
	body := report.Body()
	if !strings.Contains(body, "storage unreachable") {
		t.Fatalf("body missing error detail:\n%s", body)
	}
	if !strings.Contains(body, "fail") {
		t.Fatalf("body missing check outcome:\n%s", body)
	}
}
