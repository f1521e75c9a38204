package logging

import (
	"bytes"
	"log"
	"net/http"
	"testing"

	apexlog "github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"
)

type fakeHandler struct{}

func (s *fakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
}

func TestMakeAccessLogHandler(t *testing.T) {
	buff := &bytes.Buffer{}
	old := log.Writer()
	defer func() {
		log.SetOutput(old)
	}()
	log.SetOutput(buff)
	f := MakeAccessLogHandler(&fakeHandler{})
	log.SetOutput(old)
	srv := http.Server{
		Addr:    ":0",
		Handler: f,
	}
	rtx.Must(httpx.ListenAndServeAsync(&srv), "Could not start server")
	defer srv.Close()
	_, err := http.Get("http://" + srv.Addr + "/")
	rtx.Must(err, "Could not get")
	s, err := buff.ReadString('\n')
	if s == "" {
		t.Error("We should not have had an empty string")
	}
}

func TestSetLevel(t *testing.T) {
	old := Logger.Level
	defer func() {
		Logger.Level = old
	}()
	tests := []struct {
		name    string
		level   string
		want    apexlog.Level
		wantErr bool
	}{
		{name: "debug", level: "debug", want: apexlog.DebugLevel},
		{name: "warn", level: "warn", want: apexlog.WarnLevel},
		{name: "bogus", level: "chatty", want: apexlog.WarnLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SetLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if Logger.Level != tt.want {
				t.Errorf("SetLevel() level = %v, want %v", Logger.Level, tt.want)
			}
		})
	}
}

func TestFlow(t *testing.T) {
	old := Logger.Handler
	defer func() {
		Logger.Handler = old
	}()
	h := memory.New()
	Logger.Handler = h
	Flow("flow-1").Info("hello")
	if len(h.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(h.Entries))
	}
	if h.Entries[0].Fields.Get("flow") != "flow-1" {
		t.Errorf("flow field = %v, want flow-1", h.Entries[0].Fields.Get("flow"))
	}
}
