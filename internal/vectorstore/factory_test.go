package vectorstore

import "testing"

func TestFactory(t *testing.T) {
	if _, err := New(FactoryConfig{Provider: "memory"}); err != nil {
		t.Errorf("memory: %v", err)
	}
	if _, err := New(FactoryConfig{Provider: "milvus", MilvusURL: "http://localhost:19530"}); err != nil {
		t.Errorf("milvus: %v", err)
	}
	if _, err := New(FactoryConfig{Provider: "milvus"}); err == nil {
		t.Error("milvus without URL must fail")
	}
	if _, err := New(FactoryConfig{Provider: "sqlite"}); err == nil {
		t.Error("sqlite without DB must fail")
	}
	if _, err := New(FactoryConfig{Provider: "qdrant"}); err == nil {
		t.Error("unknown provider must fail")
	}
	if _, err := New(FactoryConfig{Provider: "sqlite", DB: testDB(t)}); err != nil {
		t.Errorf("sqlite: %v", err)
	}
}
