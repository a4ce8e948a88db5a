package fiturae_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should use a distroless image, got: %s", lastFrom)
	}
}

func TestDockerfileEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "fiturae") {
		t.Error("Dockerfile should build a binary named 'fiturae'")
	}
	if !strings.Contains(content, "ENTRYPOINT") {
		t.Error("Dockerfile should contain ENTRYPOINT")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// api, web, worker, db, migrate の構成
	for _, svc := range []string{"api:", "web:", "worker:", "db:", "migrate:"} {
		if !strings.Contains(content, svc) {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
	if !strings.Contains(content, "postgres:") {
		t.Error("docker-compose.yml should use PostgreSQL image")
	}
	for _, cmd := range []string{`["serve"]`, `["web"]`, `["worker"]`, `["migrate"]`} {
		if !strings.Contains(content, cmd) {
			t.Errorf("docker-compose.yml should start a service with command %s", cmd)
		}
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// DBは外部通信できない内部ネットワークに置く
	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
	// APIはGitHub OAuthのために外部ネットワークにも接続する
	if !strings.Contains(content, "external") {
		t.Error("docker-compose.yml should define an external network for the API")
	}
}
