//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// startServer runs "sentinel serve" until the test ends and waits for /health.
func startServer(t *testing.T, dataDir string, env map[string]string) string {
	t.Helper()
	addr := freeAddr(t)
	cmd := sentinelCmd(dataDir, env, "serve", "--addr", addr)
	var errBuf buffer
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sentinel serve: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
		}
	})

	base := "http://" + addr
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return base
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("sentinel serve did not become healthy\nstderr: %s", errBuf.b)
	return ""
}

func postJSON(t *testing.T, url, apiKey string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Sentinel-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestE2E_ServeAuditListAndVerify(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{"SENTINEL_API_KEYS": "sk-e2e:acme"}
	base := startServer(t, dir, env)

	resp, _ := postJSON(t, base+"/anonymize", "", map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}

	resp, anon := postJSON(t, base+"/anonymize", "sk-e2e", map[string]string{"text": "Contact bob@example.org"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymize status %d: %v", resp.StatusCode, anon)
	}
	resp, deanon := postJSON(t, base+"/deanonymize", "sk-e2e", map[string]any{
		"ai_response": fmt.Sprint(anon["clean_text"]),
		"mapping":     anon["mapping"],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deanonymize status %d: %v", resp.StatusCode, deanon)
	}
	if deanon["real_human_text"] != "Contact bob@example.org" {
		t.Errorf("unexpected deanonymize result: %v", deanon)
	}

	stdout, stderr, code := RunSentinel(t, dir, nil, "", "audit", "list", "--tenant", "acme", "--limit", "5")
	if code != 0 {
		t.Fatalf("sentinel audit list exited %d\nstderr: %s", code, stderr)
	}
	if strings.Contains(stdout, "bob@example.org") {
		t.Fatal("audit trail must not contain raw text")
	}
	ids := regexp.MustCompile(`aud_[a-f0-9-]+`).FindAllString(stdout, -1)
	if len(ids) != 2 {
		t.Fatalf("expected 2 audit records, got %d\n%s", len(ids), stdout)
	}
	verifyOut, stderr, code := RunSentinel(t, dir, nil, "", "audit", "verify", ids[0])
	if code != 0 {
		t.Fatalf("sentinel audit verify exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(verifyOut, "VALID") {
		t.Errorf("expected 'VALID' in audit verify output, got: %s", verifyOut)
	}
}
