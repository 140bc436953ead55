package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CodedInternet/goecat/onboard/journal"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAPI(t *testing.T) {
	setupTestEnv(t)
	router := newRouter()

	request := func(method, path, user string, body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			token, err := newJWT(user)
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	Convey("Given the API of an unconfigured rig", t, func() {
		Reset(func() {
			ENV.Rig.SetEmergency(false)
			ENV.Rig.SetInhibit(false)
			if ENV.Rig.Lifecycle.State() == lifecycle.Inactive {
				ENV.Rig.Trigger(lifecycle.Cleanup)
			}
		})

		Convey("status needs a token", func() {
			So(request("GET", "/api/status", "", nil).Code, ShouldEqual, http.StatusUnauthorized)

			rr := request("GET", "/api/status", TEST_OPERATOR, nil)
			So(rr.Code, ShouldEqual, http.StatusOK)

			var status map[string]interface{}
			So(json.Unmarshal(rr.Body.Bytes(), &status), ShouldBeNil)
			So(status["lifecycle"], ShouldEqual, "unconfigured")
			So(status["safety"], ShouldEqual, "ok")
			So(status["drives"], ShouldHaveLength, 2)
		})

		Convey("an admin can configure the rig", func() {
			rr := request("POST", "/api/lifecycle/configure", TEST_ADMIN, nil)
			So(rr.Code, ShouldEqual, http.StatusOK)

			var status lifecycle.Status
			So(json.Unmarshal(rr.Body.Bytes(), &status), ShouldBeNil)
			So(status.State, ShouldEqual, lifecycle.Inactive)

			Convey("and the transitions are journaled", func() {
				var events []journal.Event
				deadline := time.Now().Add(time.Second)
				for len(events) == 0 && time.Now().Before(deadline) {
					rr := request("GET", "/api/events?kind=transition&limit=1", TEST_OPERATOR, nil)
					So(rr.Code, ShouldEqual, http.StatusOK)
					So(json.Unmarshal(rr.Body.Bytes(), &events), ShouldBeNil)
					if len(events) == 0 {
						time.Sleep(10 * time.Millisecond)
					}
				}
				So(events, ShouldHaveLength, 1)
				So(events[0].Kind, ShouldEqual, journal.KIND_TRANSITION)
			})
		})

		Convey("an operator cannot drive the lifecycle", func() {
			rr := request("POST", "/api/lifecycle/configure", TEST_OPERATOR, nil)
			So(rr.Code, ShouldEqual, http.StatusForbidden)
			So(ENV.Rig.Lifecycle.State(), ShouldEqual, lifecycle.Unconfigured)
		})

		Convey("illegal transitions conflict", func() {
			So(request("POST", "/api/lifecycle/activate", TEST_ADMIN, nil).Code, ShouldEqual, http.StatusConflict)
			So(ENV.Rig.Lifecycle.State(), ShouldEqual, lifecycle.Unconfigured)
		})

		Convey("unknown transitions are not found", func() {
			So(request("POST", "/api/lifecycle/error", TEST_ADMIN, nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("the safety switches can be set", func() {
			rr := request("POST", "/api/safety", TEST_OPERATOR, strings.NewReader(`{"emergency": true, "inhibit": true}`))
			So(rr.Code, ShouldEqual, http.StatusOK)
			So(ENV.Rig.Status().Emergency, ShouldBeTrue)
			So(ENV.Rig.Status().Inhibit, ShouldBeTrue)

			var status map[string]interface{}
			So(json.Unmarshal(rr.Body.Bytes(), &status), ShouldBeNil)
			So(status["emergency"], ShouldEqual, true)

			Convey("and released by the reset button", func() {
				rr := request("POST", "/api/safety", TEST_OPERATOR, strings.NewReader(`{"button": "reset"}`))
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(ENV.Rig.Status().Emergency, ShouldBeFalse)
			})
		})

		Convey("empty safety requests are rejected", func() {
			rr := request("POST", "/api/safety", TEST_OPERATOR, strings.NewReader(`{}`))
			So(rr.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("bad event limits are rejected", func() {
			So(request("GET", "/api/events?limit=many", TEST_OPERATOR, nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
