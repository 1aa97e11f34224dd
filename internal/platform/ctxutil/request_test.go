package ctxutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRequestDataRoundTrip(t *testing.T) {
	if got := UserID(context.Background()); got != uuid.Nil {
		t.Fatalf("expected nil user id, got %s", got)
	}
	id := uuid.New()
	ctx := WithRequestData(context.Background(), &RequestData{UserID: id, RequestID: "r-1"})
	if got := UserID(ctx); got != id {
		t.Fatalf("UserID=%s want %s", got, id)
	}
	if rd := GetRequestData(ctx); rd == nil || rd.RequestID != "r-1" {
		t.Fatalf("unexpected request data %+v", rd)
	}
}
