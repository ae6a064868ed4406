package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	for _, itemType := range []string{"course", "project", "internship_certificate", "certificate"} {
		req := CreateOrderRequest{ItemID: 7, ItemType: itemType}
		if err := v.Struct(req); err != nil {
			t.Fatalf("%s: expected valid, got error: %v", itemType, err)
		}
	}
}

func TestCreateOrderRequest_Invalid(t *testing.T) {
	v := New()

	cases := []CreateOrderRequest{
		{ItemID: 7, ItemType: "ebook"},
		{ItemID: 0, ItemType: "course"},
		{ItemID: -1, ItemType: "course"},
		{ItemID: 7},
	}
	for _, req := range cases {
		if err := v.Struct(req); err == nil {
			t.Fatalf("expected validation error for %+v, got nil", req)
		}
	}
}

func TestVerifyPaymentRequest(t *testing.T) {
	v := New()

	ok := VerifyPaymentRequest{
		RazorpayOrderID:   "order_ref_1",
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
	}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid without db_order_id, got %v", err)
	}
	ok.DBOrderID = "7f1c2a3e-4b5d-4e6f-8a9b-0c1d2e3f4a5b"
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid with db_order_id, got %v", err)
	}

	bad := ok
	bad.DBOrderID = "42"
	if err := v.Struct(bad); err == nil {
		t.Fatal("expected error for non-uuid db_order_id")
	}
	bad = ok
	bad.RazorpaySignature = "not-hex!"
	if err := v.Struct(bad); err == nil {
		t.Fatal("expected error for non-hex signature")
	}
}

func TestReportFailureRequest_NeedsOrderRef(t *testing.T) {
	v := New()

	if err := v.Struct(ReportFailureRequest{Reason: "cancelled"}); err == nil {
		t.Fatal("expected error when no order reference is given")
	}
	if err := v.Struct(ReportFailureRequest{RazorpayOrderID: "order_ref_1"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	long := ReportFailureRequest{RazorpayOrderID: "order_ref_1", Reason: strings.Repeat("x", 501)}
	if err := v.Struct(long); err == nil {
		t.Fatal("expected error for oversized reason")
	}
}

func TestUpdateStatusRequest(t *testing.T) {
	v := New()
	if err := v.Struct(UpdateStatusRequest{Status: "paid"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := v.Struct(UpdateStatusRequest{Status: "refunded"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestBindAndValidate_WritesFieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item_id":1,"item_type":"ebook"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateOrderRequest
	if err := BindAndValidate(c, &req, v); err == nil {
		t.Fatal("expected error")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "validation_failed") || !strings.Contains(w.Body.String(), `"CreateOrderRequest.ItemType":"oneof"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{nope`))
	if err := BindAndValidate(c, &req, v); err == nil {
		t.Fatal("expected bind error")
	}
	if !strings.Contains(w.Body.String(), "invalid_request_body") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "invalid character") || strings.Contains(w.Body.String(), "msg") {
		t.Fatalf("decoder error leaked: %s", w.Body.String())
	}

	// type mismatches name Go types in the decoder error
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item_id":"abc","item_type":"course"}`))
	if err := BindAndValidate(c, &req, v); err == nil {
		t.Fatal("expected bind error")
	}
	if body := w.Body.String(); body != `{"error":"invalid_request_body"}` {
		t.Fatalf("unexpected body %s", body)
	}
}
