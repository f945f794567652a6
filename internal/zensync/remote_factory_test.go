package zensync

import (
	"context"
	"errors"
	"testing"
)

func TestBuildRemoteStoreSelectsDriverByScheme(t *testing.T) {
	remote, err := BuildRemoteStore(RemoteConfig{URL: "https://proj.supabase.co", Key: "anon-key"})
	if err != nil {
		t.Fatalf("https should build the REST client: %v", err)
	}
	if _, ok := remote.(*PostgRESTClient); !ok {
		t.Fatalf("expected REST client for https, got %T", remote)
	}

	remote, err = BuildRemoteStore(RemoteConfig{URL: "postgres://user:pw@db.example.com/app"})
	if err != nil {
		t.Fatalf("postgres should build lazily: %v", err)
	}
	if _, ok := remote.(*PostgresRemoteStore); !ok {
		t.Fatalf("expected sql store for postgres, got %T", remote)
	}

	remote, err = BuildRemoteStore(RemoteConfig{URL: "mongodb://db.example.com/writing"})
	if err != nil {
		t.Fatalf("mongodb should build lazily: %v", err)
	}
	mongo, ok := remote.(*MongoRemoteStore)
	if !ok {
		t.Fatalf("expected document store for mongodb, got %T", remote)
	}
	if mongo.database != "writing" {
		t.Fatalf("expected database from uri path, got %q", mongo.database)
	}
}

func TestBuildRemoteStoreRejectsBadConfig(t *testing.T) {
	if _, err := BuildRemoteStore(RemoteConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("empty url must report unconfigured, got %v", err)
	}
	if _, err := BuildRemoteStore(RemoteConfig{URL: "https://proj.supabase.co"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("https without a key must be invalid, got %v", err)
	}
	if _, err := BuildRemoteStore(RemoteConfig{URL: "ftp://db.example.com"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown scheme must be invalid, got %v", err)
	}
}

func TestMongoDatabaseFromURIDefaults(t *testing.T) {
	if got := mongoDatabaseFromURI("mongodb://db.example.com"); got != mongoDefaultDatabase {
		t.Fatalf("expected default database without a path, got %q", got)
	}
	if got := mongoDatabaseFromURI("mongodb://db.example.com/app?retryWrites=true"); got != "app" {
		t.Fatalf("expected query trimmed from database, got %q", got)
	}
}

func TestRemoteManagerReusesAndRebuilds(t *testing.T) {
	cache := NewCache(NewInMemoryStateBackend())
	config := NewConfigStore(cache, RemoteConfig{})
	manager := NewRemoteManager(config)

	var builds int
	manager.build = func(cfg RemoteConfig) (RemoteStore, error) {
		builds++
		return newFakeRemote(), nil
	}

	if manager.Get() != nil {
		t.Fatalf("unconfigured manager must return nil")
	}

	config.Save("https://db.example.com", "key")
	first := manager.Get()
	if first == nil || builds != 1 {
		t.Fatalf("expected one build, got %d", builds)
	}
	if manager.Get() != first {
		t.Fatalf("same config must reuse the client")
	}

	config.Save("https://other.example.com", "key")
	second := manager.Get()
	if second == first || builds != 2 {
		t.Fatalf("changed config must rebuild, builds=%d", builds)
	}

	manager.Invalidate()
	if manager.Get() == second {
		t.Fatalf("invalidate must force a fresh client")
	}
	manager.Close()
}

func TestRemoteManagerTestConnection(t *testing.T) {
	cache := NewCache(NewInMemoryStateBackend())
	config := NewConfigStore(cache, RemoteConfig{})
	manager := NewRemoteManager(config)

	fake := newFakeRemote()
	manager.build = func(cfg RemoteConfig) (RemoteStore, error) { return fake, nil }

	if err := manager.TestConnection(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unconfigured test must report so, got %v", err)
	}

	config.Save("https://db.example.com", "key")
	if err := manager.TestConnection(context.Background()); err != nil {
		t.Fatalf("expected healthy test, got %v", err)
	}
	if got := manager.Get(); got != RemoteStore(fake) {
		t.Fatalf("successful test should keep the probed client, got %T", got)
	}

	fake.setFail(true)
	if err := manager.TestConnection(context.Background()); err == nil {
		t.Fatalf("expected failing probe to error")
	}
	manager.Close()
}
