package metadata

import (
	"testing"

	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

func TestValueVariantAccessors(t *testing.T) {
	s, ok := String("hello").AsString()
	if !ok || s != "hello" {
		t.Fatalf("AsString: got %q, %v", s, ok)
	}
	if _, ok := String("hello").AsInteger(); ok {
		t.Fatal("AsInteger should fail on a String value")
	}

	i, ok := Integer(42).AsInteger()
	if !ok || i != 42 {
		t.Fatalf("AsInteger: got %d, %v", i, ok)
	}

	f, ok := Float(3.14).AsFloat()
	if !ok || f != 3.14 {
		t.Fatalf("AsFloat: got %v, %v", f, ok)
	}

	b, ok := Boolean(true).AsBoolean()
	if !ok || !b {
		t.Fatalf("AsBoolean: got %v, %v", b, ok)
	}

	if !Null().IsNull() {
		t.Fatal("expected IsNull true")
	}

	arr, ok := Array([]Value{Integer(1), Integer(2)}).AsArray()
	if !ok || len(arr) != 2 {
		t.Fatalf("AsArray: got %v, %v", arr, ok)
	}
}

func TestAsNumericAcceptsIntegerAndFloat(t *testing.T) {
	if n, ok := Integer(5).AsNumeric(); !ok || n != 5.0 {
		t.Fatalf("Integer AsNumeric: got %v, %v", n, ok)
	}
	if n, ok := Float(5.5).AsNumeric(); !ok || n != 5.5 {
		t.Fatalf("Float AsNumeric: got %v, %v", n, ok)
	}
	if _, ok := String("x").AsNumeric(); ok {
		t.Fatal("String AsNumeric should fail")
	}
}

func TestStoreGetAbsentReturnsEmptyNotNil(t *testing.T) {
	s := New()
	r := s.Get(storage.VectorId(1))
	if r == nil {
		t.Fatal("expected empty Record, got nil")
	}
	if len(r) != 0 {
		t.Fatalf("expected empty Record, got %v", r)
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	s := New()
	id := storage.VectorId(1)
	s.Set(id, Record{"category": String("a"), "price": Integer(10)})

	r := s.Get(id)
	if v, _ := r["category"].AsString(); v != "a" {
		t.Fatalf("expected category=a, got %v", v)
	}

	s.Delete(id)
	if len(s.Get(id)) != 0 {
		t.Fatal("expected empty record after delete")
	}
}

func TestStoreSetEmptyRecordClearsEntry(t *testing.T) {
	s := New()
	id := storage.VectorId(1)
	s.Set(id, Record{"a": Integer(1)})
	s.Set(id, Record{})
	if len(s.Get(id)) != 0 {
		t.Fatal("expected empty record after setting empty")
	}
}
