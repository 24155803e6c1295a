package datafiles

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/cellbook/gateway"
	"pkt.systems/cellbook/internal/backendmock"
	"pkt.systems/cellbook/schema"
)

func newTestStore(t *testing.T) (*Store, *backendmock.Backend) {
	t.Helper()
	mock := backendmock.New(nil)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)
	client, err := gateway.New(gateway.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return New(client, nil), mock
}

func TestUploadRefreshesListing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	res, err := store.Upload(ctx, "sales.csv", strings.NewReader("region,total\nnorth,10\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.FileName != "sales.csv" {
		t.Fatalf("unexpected upload result %+v", res)
	}
	snap := store.Snapshot()
	if len(snap.Files) != 1 || snap.Files[0].Name != "sales.csv" {
		t.Fatalf("expected listing refresh, got %+v", snap.Files)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	store, mock := newTestStore(t)
	_, err := store.Upload(context.Background(), "notes.txt", strings.NewReader("x"))
	if !errors.Is(err, schema.ErrUnsupportedFileType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	if store.Error() == "" {
		t.Fatalf("expected last error recorded")
	}
	if mock.Calls("/api/data-files/upload/csv")+mock.Calls("/api/data-files/upload/excel") != 0 {
		t.Fatalf("expected no upload call")
	}
}

func TestPreviewSelectsAndDeleteClears(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()
	mock.PutDataFile("sales.csv", []byte("a,b\n1,2\n"))
	preview, err := store.Preview(ctx, "sales.csv")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if _, ok := preview["columns"]; !ok {
		t.Fatalf("expected columns in preview, got %v", preview)
	}
	if store.Snapshot().Current != "sales.csv" {
		t.Fatalf("expected current file selected")
	}
	if err := store.Delete(ctx, "sales.csv"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap := store.Snapshot()
	if snap.Current != "" || snap.Preview != nil || len(snap.Files) != 0 {
		t.Fatalf("expected cleared selection, got %+v", snap)
	}
}

func TestRenameKeepsExtensionAndSelection(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()
	mock.PutDataFile("q1.csv", []byte("a\n1\n"))
	if _, err := store.Preview(ctx, "q1.csv"); err != nil {
		t.Fatalf("preview: %v", err)
	}
	res, err := store.Rename(ctx, "q1.csv", "quarter-one")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.NewPath != "quarter-one.csv" {
		t.Fatalf("expected extension kept, got %+v", res)
	}
	if store.Snapshot().Current != "quarter-one.csv" {
		t.Fatalf("expected selection to follow rename")
	}
	if names := mock.DataFileNames(); len(names) != 1 || names[0] != "quarter-one.csv" {
		t.Fatalf("unexpected backend files %v", names)
	}
}

func TestBackendErrorIsRecorded(t *testing.T) {
	store, mock := newTestStore(t)
	mock.FailNext("/api/data-files/list", "storage offline")
	_, err := store.Refresh(context.Background())
	if !errors.Is(err, schema.ErrBackendApplication) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(store.Error(), "storage offline") {
		t.Fatalf("expected message recorded, got %q", store.Error())
	}
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if store.Error() != "" {
		t.Fatalf("expected error cleared after success")
	}
}
