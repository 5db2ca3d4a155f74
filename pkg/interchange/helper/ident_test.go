package helper

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
	"go.uber.org/goleak"
)

func TestDocumentStorageIdent_Deterministic(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := types.ServiceIdentity("service-a")
	cmd := uuid.New()

	first := DocumentStorageIdent(svc, cmd)
	second := DocumentStorageIdent(svc, cmd)
	if !bytes.Equal(first, second) {
		t.Fatalf("ident not deterministic: %x != %x", first, second)
	}
}

func TestDocumentStorageIdent_DistinguishesInputs(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := types.ServiceIdentity("service-a")
	other := types.ServiceIdentity("service-b")
	cmd := uuid.New()

	if bytes.Equal(DocumentStorageIdent(svc, cmd), DocumentStorageIdent(other, cmd)) {
		t.Fatalf("different services derived the same ident")
	}
	if bytes.Equal(DocumentStorageIdent(svc, cmd), DocumentStorageIdent(svc, uuid.New())) {
		t.Fatalf("different commands derived the same ident")
	}
}

func TestDocumentStorageIdent_ServiceWide(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := types.ServiceIdentity("service-a")

	wide := DocumentStorageIdent(svc, uuid.Nil)
	scoped := DocumentStorageIdent(svc, uuid.New())
	if bytes.Equal(wide, scoped) {
		t.Fatalf("service-wide ident must not collide with a command scoped one")
	}
	if !bytes.Equal(wide, DocumentStorageIdent(svc, uuid.Nil)) {
		t.Fatalf("service-wide ident not deterministic")
	}
}

func TestInvoker_WaitsSpawned(t *testing.T) {
	done := make(chan struct{}, 1)
	InvokerInstance().Spawn(func() {
		done <- struct{}{}
	})
	InvokerInstance().Wait()
	select {
	case <-done:
	default:
		t.Fatalf("spawned routine never ran")
	}
}
