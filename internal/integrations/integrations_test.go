package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTwilioGetStatus_ActiveSubaccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, _ := r.BasicAuth(); user != "AC_master" {
			t.Errorf("basic auth user = %q", user)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accounts":[{"sid":"AC_sub1","status":"active","friendly_name":"ws_a"}]}`))
	}))
	defer srv.Close()

	a := NewTwilioAdapter(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC_master", AuthToken: "tok"})
	st := a.GetStatus(context.Background(), "ws_a")
	if !st.OK || !st.Active {
		t.Errorf("status = %+v, want OK active", st)
	}
}

func TestTwilioGetStatus_NeverReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "authenticate", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewTwilioAdapter(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC_master", AuthToken: "bad"})
	st := a.GetStatus(context.Background(), "ws_a")
	if st.OK {
		t.Errorf("status OK against 401, want failure result")
	}
	if st.Error == "" {
		t.Error("failure result missing error text")
	}
}

func TestTwilioGetStatus_NotConfigured(t *testing.T) {
	a := NewTwilioAdapter(TwilioConfig{})
	st := a.GetStatus(context.Background(), "ws_a")
	if st.OK || !strings.Contains(st.Error, "not configured") {
		t.Errorf("status = %+v, want not-configured failure", st)
	}
}

func TestTwilioSendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		r.ParseForm()
		if r.PostForm.Get("To") != "+4915700000001" || r.PostForm.Get("Body") != "hi there" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	a := NewTwilioAdapter(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC", AuthToken: "t", FromNumber: "+100"})
	res, err := a.SendSMS(context.Background(), "+4915700000001", "hi there")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if !res.Success || res.ID != "SM123" {
		t.Errorf("result = %+v", res)
	}
}

func TestWhatsAppGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer wa-token" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"id":"123","verified_name":"Studio A","quality_rating":"GREEN","code_verification_status":"VERIFIED"}`))
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{BaseURL: srv.URL, AccessToken: "wa-token", PhoneNumberID: "123"})
	st := a.GetStatus(context.Background(), "ws_a")
	if !st.OK || !st.Active {
		t.Errorf("status = %+v, want OK active", st)
	}
}

func TestWhatsAppGetStatus_RedQualityInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"123","quality_rating":"RED","code_verification_status":"VERIFIED"}`))
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{BaseURL: srv.URL, AccessToken: "wa-token", PhoneNumberID: "123"})
	st := a.GetStatus(context.Background(), "ws_a")
	if !st.OK || st.Active {
		t.Errorf("status = %+v, want OK but inactive", st)
	}
}

func TestWhatsAppSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/123/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.X1"}]}`))
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{BaseURL: srv.URL, AccessToken: "wa-token", PhoneNumberID: "123"})
	res, err := a.SendMessage(context.Background(), "+4915700000001", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !res.Success || res.ID != "wamid.X1" {
		t.Errorf("result = %+v", res)
	}
}
