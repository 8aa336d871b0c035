package command

import (
	"encoding/json"
	"testing"
)

func TestBuildRequest(t *testing.T) {
	commands := Registry()
	tests := []struct {
		key     string
		params  Params
		method  string
		path    string
		wantErr bool
	}{
		{key: "status list", params: Params{}, method: "GET", path: "/api/v1/submissions"},
		{key: "status get", params: Params{"id": "42"}, method: "GET", path: "/api/v1/submissions/42/status"},
		{key: "status get", params: Params{"submission_id": "42"}, method: "GET", path: "/api/v1/submissions/42/status"},
		{key: "status flag", params: Params{"id": "42", "flag": "Executed"}, method: "GET", path: "/api/v1/submissions/42/status/executed"},
		{key: "status clear", params: Params{"id": "42", "flag": "validated"}, method: "POST", path: "/api/v1/submissions/42/status/validated/clear"},
		{key: "status clear", params: Params{"id": "42", "flag": "validated", "requeue": "true"}, method: "POST", path: "/api/v1/submissions/42/status/validated/clear?requeue=true"},
		{key: "status clear", params: Params{"id": "42", "flag": "merged"}, wantErr: true},
		{key: "status get", params: Params{"id": "x"}, wantErr: true},
		{key: "status get", params: Params{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+" "+tt.path, func(t *testing.T) {
			req, err := BuildRequest(commands[tt.key], tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", req)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildRequest() error = %v", err)
			}
			if req.Method != tt.method || req.Path != tt.path {
				t.Fatalf("got %s %s, want %s %s", req.Method, req.Path, tt.method, tt.path)
			}
		})
	}
}

func TestBuildRequeue(t *testing.T) {
	cmd := Registry()["status requeue"]
	if cmd.Transport != TransportKafka {
		t.Fatal("requeue must go through kafka")
	}
	msg, err := BuildRequeue(cmd, Params{"id": "7", "flag": "EXECUTED"})
	if err != nil {
		t.Fatalf("BuildRequeue() error = %v", err)
	}
	var body struct {
		ID   int64  `json:"id"`
		Flag string `json:"flag"`
	}
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != 7 || body.Flag != "executed" || msg.ID != "7" {
		t.Fatalf("unexpected message %+v / %q", body, msg.ID)
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"id=1", "Flag=executed"})
	if err != nil || params.Get("flag") != "executed" || params.Get("ID") != "1" {
		t.Fatalf("ParseParams() = %v, %v", params, err)
	}
	if _, err := ParseParams([]string{"oops"}); err == nil {
		t.Fatal("expected error for bare token")
	}
}
