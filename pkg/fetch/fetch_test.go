package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/churnboard/churnboard/pkg/loading"
	. "github.com/smartystreets/goconvey/convey"
)

type customer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestRunner(t *testing.T) {
	Convey("Given a JSON server and a runner with a counting notifier", t, func() {
		var flag *loading.Flag
		var flagDuringRequest atomic.Bool

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flagDuringRequest.Store(flag.Value())
			switch r.URL.Path {
			case "/customer":
				_, _ = io.WriteString(w, `{"id":42,"name":"Ada"}`)
			case "/echo":
				body, _ := io.ReadAll(r.Body)
				_, _ = w.Write(body)
			case "/broken":
				_, _ = io.WriteString(w, `<html>not json</html>`)
			case "/missing":
				http.Error(w, `{"message":"nope"}`, http.StatusNotFound)
			}
		}))
		defer srv.Close()

		var notified []*Failure
		runner := NewRunner(
			WithBaseURL(srv.URL),
			WithNotifier(NotifierFunc(func(_ context.Context, f *Failure) { notified = append(notified, f) })),
		)

		var transitions []bool
		flag = loading.New(func(v bool) { transitions = append(transitions, v) })
		ctx := context.Background()

		Convey("When the request succeeds", func() {
			res := Run[customer](ctx, runner, Request{URL: srv.URL + "/customer"}, flag)

			Convey("Then the value is decoded and the flag toggled around the call", func() {
				So(res.OK(), ShouldBeTrue)
				So(res.Value, ShouldResemble, customer{ID: 42, Name: "Ada"})
				So(flagDuringRequest.Load(), ShouldBeTrue)
				So(flag.Value(), ShouldBeFalse)
				So(transitions, ShouldResemble, []bool{true, false})
				So(notified, ShouldBeEmpty)
			})
		})

		Convey("When the URL is relative", func() {
			res := Run[customer](ctx, runner, Request{URL: "/customer", Method: "get"}, nil)

			Convey("Then it resolves against the base URL", func() {
				So(res.OK(), ShouldBeTrue)
				So(res.Value.ID, ShouldEqual, 42)
			})
		})

		Convey("When a struct body is posted", func() {
			res := Run[customer](ctx, runner, Request{
				URL:     "/echo",
				Method:  http.MethodPost,
				Headers: map[string]string{"x-api-key": "k"},
				Body:    customer{ID: 7, Name: "Bo"},
			}, flag)

			Convey("Then it is sent as JSON", func() {
				So(res.OK(), ShouldBeTrue)
				So(res.Value, ShouldResemble, customer{ID: 7, Name: "Bo"})
			})
		})

		Convey("When the body is not JSON", func() {
			var res Result[customer]
			So(func() { res = Run[customer](ctx, runner, Request{URL: "/broken"}, flag) }, ShouldNotPanic)

			Convey("Then a decode failure is returned and notified exactly once", func() {
				So(res.OK(), ShouldBeFalse)
				So(res.Value, ShouldResemble, customer{})
				So(res.Err.Kind, ShouldEqual, KindDecode)
				So(errors.Is(res.Err, ErrDecode), ShouldBeTrue)
				So(res.Err.Body, ShouldContainSubstring, "not json")
				So(len(notified), ShouldEqual, 1)
				So(notified[0], ShouldEqual, res.Err)
				So(flag.Value(), ShouldBeFalse)
				So(transitions, ShouldResemble, []bool{true, false})
			})
		})

		Convey("When the server answers with a non-2xx status", func() {
			res := runner.Run(ctx, Request{URL: "/missing"}, flag)

			Convey("Then a status failure carries the code", func() {
				So(res.OK(), ShouldBeFalse)
				So(res.Err.Kind, ShouldEqual, KindStatus)
				So(res.Err.StatusCode, ShouldEqual, http.StatusNotFound)
				So(errors.Is(res.Err, ErrStatus), ShouldBeTrue)
				So(len(notified), ShouldEqual, 1)
				So(flag.Value(), ShouldBeFalse)
			})
		})

		Convey("When the URL is empty", func() {
			res := runner.Run(ctx, Request{URL: "  "}, flag)

			Convey("Then no request is made and the failure is a request failure", func() {
				So(res.Err.Kind, ShouldEqual, KindRequest)
				So(errors.Is(res.Err, ErrNetwork), ShouldBeTrue)
				So(len(notified), ShouldEqual, 1)
				So(transitions, ShouldResemble, []bool{true, false})
			})
		})
	})
}

func TestRunnerTransportFailure(t *testing.T) {
	Convey("Given a client that cannot connect", t, func() {
		count := 0
		runner := NewRunner(
			WithHTTPClient(failingClient{}),
			WithNotifier(NotifierFunc(func(context.Context, *Failure) { count++ })),
		)
		flag := &loading.Flag{}

		res := runner.Run(context.Background(), Request{URL: "http://example.invalid/x"}, flag)

		Convey("Then the failure wraps the cause and the flag is released", func() {
			So(res.Err.Kind, ShouldEqual, KindRequest)
			So(res.Err.Error(), ShouldContainSubstring, "connection refused")
			So(count, ShouldEqual, 1)
			So(flag.Value(), ShouldBeFalse)
		})
	})

	Convey("Given no notifier and no flag", t, func() {
		runner := NewRunner(WithHTTPClient(failingClient{}))

		Convey("Then a failing call neither panics nor toggles anything", func() {
			So(func() { runner.Run(context.Background(), Request{URL: "http://x/"}, nil) }, ShouldNotPanic)
		})
	})
}

func TestEncodeBody(t *testing.T) {
	cases := []struct {
		name  string
		body  any
		want  string
		ctype string
	}{
		{"nil", nil, "", ""},
		{"bytes", []byte("a,b"), "a,b", ""},
		{"string", "raw", "raw", ""},
		{"reader", strings.NewReader("r"), "r", ""},
		{"map", map[string]int{"id": 1}, `{"id":1}`, "application/json"},
	}
	for _, tc := range cases {
		r, ctype, err := encodeBody(tc.body)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got := ""
		if r != nil {
			b, _ := io.ReadAll(r)
			got = string(b)
		}
		if got != tc.want || ctype != tc.ctype {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.name, got, ctype, tc.want, tc.ctype)
		}
	}

	if _, _, err := encodeBody(make(chan int)); err == nil {
		t.Error("expected an error encoding a channel")
	}
}
