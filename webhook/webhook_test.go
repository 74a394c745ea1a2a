package webhook

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
)

func TestDeliver_SignsBody(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var gotSig, gotBody string
	httpmock.RegisterResponder(http.MethodPost, "https://hooks.example/done",
		func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			gotBody = string(b)
			gotSig = req.Header.Get(SignatureHeader)
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	ev := &Event{Type: EventBatchCompleted, JobID: "job-1", Timestamp: 1700000000}
	if err := Deliver(context.Background(), "https://hooks.example/done", "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if want := Sign("s3cret", []byte(gotBody)); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://hooks.example/done",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(SignatureHeader) != "" {
				t.Error("unexpected signature header")
			}
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	if err := Deliver(context.Background(), "https://hooks.example/done", "", &Event{Type: EventBatchCompleted}); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://hooks.example/done",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	if err := Deliver(context.Background(), "https://hooks.example/done", "", &Event{Type: EventBatchFailed}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
