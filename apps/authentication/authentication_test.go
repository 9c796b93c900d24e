// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package authentication

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/window/windowtest"
	"github.com/kylelemons/godebug/pretty"
)

const waitFor = 5 * time.Second

type outcome struct {
	res Result
	err error
}

func newService(t *testing.T) (*Service, *windowtest.Factory) {
	t.Helper()
	factory := &windowtest.Factory{}
	svc, err := New(factory, Config{
		ClientID:          "abc",
		RedirectURI:       "http://localhost",
		LogoutRedirectURI: "http://localhost",
		Environment:       authority.AzurePublic,
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	return svc, factory
}

func authorizeAsync(svc *Service, ctx context.Context, tenant string, silent bool) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		res, err := svc.Authorize(ctx, tenant, silent)
		ch <- outcome{res, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitFor):
		t.Fatalf("authorization did not complete")
	}
	return outcome{}
}

func waitState(t *testing.T, svc *Service, want State) {
	t.Helper()
	states, cancel := svc.Subscribe()
	defer cancel()
	timeout := time.After(waitFor)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("state never became %s, is %s", want, svc.State())
		}
	}
}

func TestAuthorizeURL(t *testing.T) {
	svc, factory := newService(t)
	done := authorizeAsync(svc, context.Background(), "tenant-1", false)

	w := factory.Next(waitFor)
	if w == nil {
		t.Fatal("TestAuthorizeURL: no window loaded")
	}
	urls := w.URLs()
	if len(urls) != 1 {
		t.Fatalf("TestAuthorizeURL: LoadURL called %d times, want 1", len(urls))
	}
	u := urls[0]
	for _, want := range []string{
		"https://login.microsoftonline.com/tenant-1/oauth2/authorize",
		"&resource=https://management.azure.com/",
		"?response_type=id_token+code",
		"&scope=user_impersonation+openid",
		"&client_id=abc",
		"&redirect_uri=http%3A%2F%2Flocalhost",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("TestAuthorizeURL: %s does not contain %s", u, want)
		}
	}
	if strings.Contains(u, "&prompt=none") {
		t.Errorf("TestAuthorizeURL: interactive URL contains &prompt=none")
	}

	waitState(t, svc, UserInput)
	if !w.IsVisible() {
		t.Errorf("TestAuthorizeURL: window should be visible")
	}

	w.NotifyClose()
	wait(t, done)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		desc      string
		events    func(w *windowtest.Window)
		want      Result
		wantErr   *customErrors.AuthorizeError
		wantState State
	}{
		{
			desc: "Success: id token and code",
			events: func(w *windowtest.Window) {
				w.NotifyRedirect("http://localhost/#id_token=sometoken&code=somecode")
			},
			want:      Result{IDToken: "sometoken", Code: "somecode"},
			wantState: Authenticated,
		},
		{
			desc: "Error: redirect returns an error",
			events: func(w *windowtest.Window) {
				w.NotifyRedirect("http://localhost/#error=someerror&error_description=There was an error")
			},
			wantErr:   &customErrors.AuthorizeError{Code: "someerror", Description: "There was an error"},
			wantState: Error,
		},
		{
			desc: "Success: navigations to other pages are ignored",
			events: func(w *windowtest.Window) {
				w.NotifyNavigate("https://login.microsoftonline.com/common/login")
				w.NotifyNavigate("http://localhost/#id_token=navtoken&code=navcode")
			},
			want:      Result{IDToken: "navtoken", Code: "navcode"},
			wantState: Authenticated,
		},
		{
			desc: "Error: window closed without redirect",
			events: func(w *windowtest.Window) {
				w.NotifyClose()
			},
			wantErr:   &customErrors.AuthorizeError{Code: WindowClosed, Description: "the authorization window was closed before signing in"},
			wantState: Error,
		},
		{
			desc: "Error: redirect without code",
			events: func(w *windowtest.Window) {
				w.NotifyRedirect("http://localhost/#id_token=sometoken")
			},
			wantErr:   &customErrors.AuthorizeError{Code: InvalidResponse, Description: "the redirect did not contain an id_token and a code"},
			wantState: Error,
		},
	}

	for _, test := range tests {
		svc, factory := newService(t)
		done := authorizeAsync(svc, context.Background(), "tenant-1", false)

		w := factory.Next(waitFor)
		if w == nil {
			t.Fatalf("TestAuthorize(%s): no window loaded", test.desc)
		}
		test.events(w)
		got := wait(t, done)

		if test.wantErr != nil {
			var authErr *customErrors.AuthorizeError
			if !errors.As(got.err, &authErr) {
				t.Errorf("TestAuthorize(%s): got err == %v, want *AuthorizeError", test.desc, got.err)
				continue
			}
			if diff := pretty.Compare(test.wantErr, authErr); diff != "" {
				t.Errorf("TestAuthorize(%s): -want/+got:\n%s", test.desc, diff)
			}
		} else {
			if got.err != nil {
				t.Errorf("TestAuthorize(%s): got err == %s, want err == nil", test.desc, got.err)
				continue
			}
			if diff := pretty.Compare(test.want, got.res); diff != "" {
				t.Errorf("TestAuthorize(%s): -want/+got:\n%s", test.desc, diff)
			}
		}

		if w.DestroyCalls() != 1 {
			t.Errorf("TestAuthorize(%s): Destroy called %d times, want 1", test.desc, w.DestroyCalls())
		}
		if svc.State() != test.wantState {
			t.Errorf("TestAuthorize(%s): state == %s, want %s", test.desc, svc.State(), test.wantState)
		}
	}
}

func TestAuthorizeQueue(t *testing.T) {
	svc, factory := newService(t)
	ctx := context.Background()

	p1 := authorizeAsync(svc, ctx, "tenant-1", false)
	w1 := factory.Next(waitFor)
	if w1 == nil {
		t.Fatal("TestAuthorizeQueue: no window for tenant-1")
	}
	p2 := authorizeAsync(svc, ctx, "tenant-2", false)

	if !factory.Idle(100 * time.Millisecond) {
		t.Fatal("TestAuthorizeQueue: a second window was loaded while the first was open")
	}
	select {
	case o := <-p1:
		t.Fatalf("TestAuthorizeQueue: tenant-1 completed early with %+v", o)
	case o := <-p2:
		t.Fatalf("TestAuthorizeQueue: tenant-2 completed early with %+v", o)
	default:
	}

	w1.NotifyRedirect("http://localhost/#id_token=sometoken&code=somecode")
	o1 := wait(t, p1)
	if diff := pretty.Compare(outcome{res: Result{IDToken: "sometoken", Code: "somecode"}}, o1); diff != "" {
		t.Errorf("TestAuthorizeQueue: tenant-1: -want/+got:\n%s", diff)
	}
	if w1.DestroyCalls() != 1 {
		t.Errorf("TestAuthorizeQueue: first window destroyed %d times, want 1", w1.DestroyCalls())
	}

	w2 := factory.Next(waitFor)
	if w2 == nil {
		t.Fatal("TestAuthorizeQueue: no window for tenant-2")
	}
	if !strings.Contains(w2.LastURL(), "/tenant-2/oauth2/authorize") {
		t.Errorf("TestAuthorizeQueue: second window loaded %s, want tenant-2", w2.LastURL())
	}
	select {
	case o := <-p2:
		t.Fatalf("TestAuthorizeQueue: tenant-2 completed before its redirect with %+v", o)
	default:
	}

	w2.NotifyRedirect("http://localhost/#id_token=sometoken2&code=somecode2")
	o2 := wait(t, p2)
	if diff := pretty.Compare(outcome{res: Result{IDToken: "sometoken2", Code: "somecode2"}}, o2); diff != "" {
		t.Errorf("TestAuthorizeQueue: tenant-2: -want/+got:\n%s", diff)
	}
	if got := len(factory.Windows()); got != 2 {
		t.Errorf("TestAuthorizeQueue: %d windows created, want 2", got)
	}
}

func TestAuthorizeQueueCancel(t *testing.T) {
	svc, factory := newService(t)

	p1 := authorizeAsync(svc, context.Background(), "tenant-1", false)
	w1 := factory.Next(waitFor)
	if w1 == nil {
		t.Fatal("TestAuthorizeQueueCancel: no window for tenant-1")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p2 := authorizeAsync(svc, ctx, "tenant-2", false)
	p3 := authorizeAsync(svc, context.Background(), "tenant-3", false)

	deadline := time.Now().Add(waitFor)
	for svc.queue.pending() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("TestAuthorizeQueueCancel: %d waiters, want 2", svc.queue.pending())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if o := wait(t, p2); !errors.Is(o.err, context.Canceled) {
		t.Errorf("TestAuthorizeQueueCancel: got err == %v, want context.Canceled", o.err)
	}

	w1.NotifyClose()
	wait(t, p1)

	w3 := factory.Next(waitFor)
	if w3 == nil {
		t.Fatal("TestAuthorizeQueueCancel: cancelled waiter blocked tenant-3")
	}
	if !strings.Contains(w3.LastURL(), "/tenant-3/") {
		t.Errorf("TestAuthorizeQueueCancel: next window loaded %s, want tenant-3", w3.LastURL())
	}
	w3.NotifyRedirect("http://localhost/#id_token=t3&code=c3")
	if o := wait(t, p3); o.err != nil {
		t.Errorf("TestAuthorizeQueueCancel: tenant-3: %s", o.err)
	}
}

func TestAuthorizeCancelWhileWaitingForWindow(t *testing.T) {
	svc, factory := newService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := authorizeAsync(svc, ctx, "tenant-1", false)
	w := factory.Next(waitFor)
	if w == nil {
		t.Fatal("no window loaded")
	}
	waitState(t, svc, UserInput)
	cancel()

	if o := wait(t, done); !errors.Is(o.err, context.Canceled) {
		t.Errorf("TestAuthorizeCancelWhileWaitingForWindow: got err == %v, want context.Canceled", o.err)
	}
	if w.DestroyCalls() != 1 {
		t.Errorf("TestAuthorizeCancelWhileWaitingForWindow: Destroy called %d times, want 1", w.DestroyCalls())
	}
	if w.IsVisible() {
		t.Errorf("TestAuthorizeCancelWhileWaitingForWindow: window still visible")
	}
	if svc.State() != NotAuthenticated {
		t.Errorf("TestAuthorizeCancelWhileWaitingForWindow: state == %s, want NotAuthenticated", svc.State())
	}
}

func TestAuthorizeWindowFailure(t *testing.T) {
	svc, factory := newService(t)
	factory.Err = errors.New("no display")

	_, err := svc.Authorize(context.Background(), "tenant-1", false)
	if err == nil || !strings.Contains(err.Error(), "no display") {
		t.Errorf("TestAuthorizeWindowFailure: got err == %v, want the factory error", err)
	}
	if svc.State() != Error {
		t.Errorf("TestAuthorizeWindowFailure: state == %s, want Error", svc.State())
	}

	// The failed flow gave up its turn.
	factory.Err = nil
	done := authorizeAsync(svc, context.Background(), "tenant-1", false)
	w := factory.Next(waitFor)
	if w == nil {
		t.Fatal("TestAuthorizeWindowFailure: next authorization never loaded a window")
	}
	w.NotifyRedirect("http://localhost/#id_token=sometoken&code=somecode")
	if o := wait(t, done); o.err != nil {
		t.Errorf("TestAuthorizeWindowFailure: got err == %s, want err == nil", o.err)
	}
	if svc.State() != Authenticated {
		t.Errorf("TestAuthorizeWindowFailure: state == %s, want Authenticated", svc.State())
	}
}

func TestAuthorizeSilent(t *testing.T) {
	svc, factory := newService(t)
	done := authorizeAsync(svc, context.Background(), "tenant-1", true)

	w := factory.Next(waitFor)
	if w == nil {
		t.Fatal("TestAuthorizeSilent: no window loaded")
	}
	if !strings.HasSuffix(w.LastURL(), "&prompt=none") {
		t.Errorf("TestAuthorizeSilent: %s does not end with &prompt=none", w.LastURL())
	}
	if w.IsVisible() {
		t.Errorf("TestAuthorizeSilent: window should not be visible")
	}
	if svc.State() == UserInput {
		t.Errorf("TestAuthorizeSilent: state == UserInput for a silent authorization")
	}

	w.NotifyRedirect("http://localhost/#error=login_required&error_description=AADSTS50058")
	o := wait(t, done)
	var authErr *customErrors.AuthorizeError
	if !errors.As(o.err, &authErr) || authErr.Code != "login_required" {
		t.Errorf("TestAuthorizeSilent: got err == %v, want login_required", o.err)
	}
}

type call struct {
	Tenant string
	Silent bool
}

func TestAuthorizeTrySilentFirst(t *testing.T) {
	goodResult := Result{IDToken: "sometoken", Code: "somecode"}
	badResult := &customErrors.AuthorizeError{Code: "someerror", Description: "There was an error"}
	interactiveErr := &customErrors.AuthorizeError{Code: "access_denied", Description: "The user cancelled"}

	tests := []struct {
		desc      string
		outputs   []outcome
		wantCalls []call
		want      Result
		wantErr   error
	}{
		{
			desc:      "Success: silent works, no interactive call",
			outputs:   []outcome{{res: goodResult}},
			wantCalls: []call{{"tenant-1", true}},
			want:      goodResult,
		},
		{
			desc:      "Success: silent fails, interactive works",
			outputs:   []outcome{{err: badResult}, {res: goodResult}},
			wantCalls: []call{{"tenant-1", true}, {"tenant-1", false}},
			want:      goodResult,
		},
		{
			desc:      "Error: both fail, interactive error returned",
			outputs:   []outcome{{err: badResult}, {err: interactiveErr}},
			wantCalls: []call{{"tenant-1", true}, {"tenant-1", false}},
			wantErr:   interactiveErr,
		},
	}

	for _, test := range tests {
		svc, _ := newService(t)
		var calls []call
		svc.authorize = func(ctx context.Context, tenant string, silent bool) (Result, error) {
			o := test.outputs[len(calls)]
			calls = append(calls, call{tenant, silent})
			return o.res, o.err
		}

		got, err := svc.AuthorizeTrySilentFirst(context.Background(), "tenant-1")
		if diff := pretty.Compare(test.wantCalls, calls); diff != "" {
			t.Errorf("TestAuthorizeTrySilentFirst(%s): calls -want/+got:\n%s", test.desc, diff)
		}
		if test.wantErr != nil {
			if err != test.wantErr {
				t.Errorf("TestAuthorizeTrySilentFirst(%s): got err == %v, want %v", test.desc, err, test.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("TestAuthorizeTrySilentFirst(%s): got err == %s, want nil", test.desc, err)
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestAuthorizeTrySilentFirst(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestNew(t *testing.T) {
	factory := &windowtest.Factory{}
	tests := []struct {
		desc string
		cfg  Config
		err  bool
	}{
		{desc: "Error: no client id", cfg: Config{RedirectURI: "http://localhost", Environment: authority.AzurePublic}, err: true},
		{desc: "Error: no redirect uri", cfg: Config{ClientID: "abc", Environment: authority.AzurePublic}, err: true},
		{desc: "Error: no environment", cfg: Config{ClientID: "abc", RedirectURI: "http://localhost"}, err: true},
		{desc: "Success", cfg: Config{ClientID: "abc", RedirectURI: "http://localhost", Environment: authority.AzurePublic}},
	}
	for _, test := range tests {
		svc, err := New(factory, test.cfg)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNew(%s): got err == nil, want err != nil", test.desc)
		case err != nil && !test.err:
			t.Errorf("TestNew(%s): got err == %s, want err == nil", test.desc, err)
		case err == nil:
			if svc.State() != NotAuthenticated {
				t.Errorf("TestNew(%s): initial state == %s, want NotAuthenticated", test.desc, svc.State())
			}
			want := "https://login.microsoftonline.com/common/oauth2/logout?post_logout_redirect_uri=http%3A%2F%2Flocalhost"
			if got := svc.LogoutURL(); got != want {
				t.Errorf("TestNew(%s): LogoutURL() == %s, want %s", test.desc, got, want)
			}
		}
	}
}
