package list

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/pvieira/scanlist/internal/lookup"
	"github.com/pvieira/scanlist/internal/scanner"
)

// testDecoder implements scanner.Decoder for handler tests
type testDecoder struct {
	attachErr    error
	releaseCalls int
}

func (d *testDecoder) Attach(cfg scanner.Config) error {
	return d.attachErr
}

func (d *testDecoder) Release() error {
	d.releaseCalls++
	return nil
}

var _ = Describe("Server", func() {
	var (
		db         *mockDB
		resolver   *mockResolver
		decoder    *testDecoder
		controller *scanner.Controller
		server     *Server
		recorder   *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		db = newMockDB()
		resolver = &mockResolver{result: lookup.Result{Kind: lookup.KindFound, Name: "Chocolate Bar"}}
		decoder = &testDecoder{}
		controller = scanner.NewController(decoder, scanner.DefaultConfig())
		service := NewService(db, resolver)
		server = NewServer(service, controller, BasicAuth{})
		recorder = httptest.NewRecorder()
	})

	do := func(method, path string, body any) {
		var reader *bytes.Buffer
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewBuffer(data)
		} else {
			reader = &bytes.Buffer{}
		}
		req := httptest.NewRequest(method, path, reader)
		server.ServeHTTP(recorder, req)
	}

	Describe("GET /api/list", func() {
		BeforeEach(func() {
			db.items = []LineItem{
				{ID: "a", Name: "Milk", Subtotal: decimal.RequireFromString("4.20")},
				{ID: "b", Name: "Bread", Subtotal: decimal.RequireFromString("1.80")},
			}
			do("GET", "/api/list", nil)
		})

		It("returns 200 with items and total", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var summary Summary
			Expect(json.Unmarshal(recorder.Body.Bytes(), &summary)).To(Succeed())
			Expect(summary.Items).To(HaveLen(2))
			Expect(summary.Total.Equal(decimal.RequireFromString("6.00"))).To(BeTrue())
		})
	})

	Describe("POST /api/list/items", func() {
		When("the confirmation is valid", func() {
			BeforeEach(func() {
				do("POST", "/api/list/items", ConfirmRequest{
					Name:      "Chocolate Bar",
					Code:      "4006381333931",
					Quantity:  "2",
					UnitPrice: "5.50",
				})
			})

			It("returns 201 with the created item", func() {
				Expect(recorder.Code).To(Equal(http.StatusCreated))

				var item LineItem
				Expect(json.Unmarshal(recorder.Body.Bytes(), &item)).To(Succeed())
				Expect(item.Subtotal.Equal(decimal.RequireFromString("11.00"))).To(BeTrue())
			})

			It("appends the item", func() {
				Expect(db.items).To(HaveLen(1))
			})
		})

		When("a field fails validation", func() {
			BeforeEach(func() {
				do("POST", "/api/list/items", ConfirmRequest{
					Name:      "Chocolate Bar",
					Code:      "4006381333931",
					Quantity:  "",
					UnitPrice: "5.50",
				})
			})

			It("returns 400 with an error body and appends nothing", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))

				var body map[string]string
				Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
				Expect(body["error"]).To(ContainSubstring("quantity"))
				Expect(db.items).To(BeEmpty())
			})
		})

		When("the body is not JSON", func() {
			BeforeEach(func() {
				req := httptest.NewRequest("POST", "/api/list/items", bytes.NewBufferString("nope"))
				server.ServeHTTP(recorder, req)
			})

			It("returns 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the store is failing", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("storage error")
				do("POST", "/api/list/items", ConfirmRequest{
					Quantity:  "1",
					UnitPrice: "2",
				})
			})

			It("returns 500", func() {
				Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("DELETE /api/list/items/{index}", func() {
		BeforeEach(func() {
			db.items = []LineItem{{ID: "a"}, {ID: "b"}}
		})

		It("removes the item and returns 204", func() {
			do("DELETE", "/api/list/items/0", nil)
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(db.items).To(HaveLen(1))
			Expect(db.items[0].ID).To(Equal("b"))
		})

		It("returns 204 for an out-of-bounds index", func() {
			do("DELETE", "/api/list/items/9", nil)
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(db.items).To(HaveLen(2))
		})

		It("returns 400 for a non-numeric index", func() {
			do("DELETE", "/api/list/items/abc", nil)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("DELETE /api/list/items", func() {
		BeforeEach(func() {
			db.items = []LineItem{{ID: "a"}, {ID: "b"}}
			do("DELETE", "/api/list/items", nil)
		})

		It("clears the list and returns 204", func() {
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(db.items).To(BeEmpty())
		})
	})

	Describe("POST /api/scan", func() {
		When("the decoder attaches", func() {
			BeforeEach(func() {
				do("POST", "/api/scan", nil)
			})

			It("returns 201 with the running state", func() {
				Expect(recorder.Code).To(Equal(http.StatusCreated))

				var state scanStateResponse
				Expect(json.Unmarshal(recorder.Body.Bytes(), &state)).To(Succeed())
				Expect(state.State).To(Equal("running"))
				Expect(state.Session).To(Equal(uint64(1)))
			})
		})

		When("the device is unavailable", func() {
			BeforeEach(func() {
				decoder.attachErr = errors.New("permission denied")
				do("POST", "/api/scan", nil)
			})

			It("returns 503 and the controller stays idle", func() {
				Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(controller.State()).To(Equal(scanner.StateIdle))
			})
		})
	})

	Describe("DELETE /api/scan", func() {
		BeforeEach(func() {
			Expect(controller.Start()).To(Succeed())
			do("DELETE", "/api/scan", nil)
		})

		It("cancels the session and releases the decoder", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(controller.State()).To(Equal(scanner.StateIdle))
			Expect(decoder.releaseCalls).To(Equal(1))
		})
	})

	Describe("POST /api/scan/detections", func() {
		detect := func(code string, session uint64) detectionResponse {
			recorder = httptest.NewRecorder()
			do("POST", "/api/scan/detections", detectionRequest{Code: code, Session: session})
			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp detectionResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			return resp
		}

		BeforeEach(func() {
			Expect(controller.Start()).To(Succeed())
		})

		It("reports pending until the debounce accepts", func() {
			Expect(detect("4006381333931", 1).Status).To(Equal("pending"))
			Expect(detect("4006381333931", 1).Status).To(Equal("pending"))

			resp := detect("4006381333931", 1)
			Expect(resp.Status).To(Equal("accepted"))
			Expect(resp.Code).To(Equal("4006381333931"))
		})

		It("releases the decoder on acceptance", func() {
			detect("4006381333931", 1)
			detect("4006381333931", 1)
			detect("4006381333931", 1)
			Expect(decoder.releaseCalls).To(Equal(1))
			Expect(controller.State()).To(Equal(scanner.StateIdle))
		})

		It("reports frames from a superseded session as stale", func() {
			Expect(detect("4006381333931", 99).Status).To(Equal("stale"))
		})

		It("never accepts implausible codes", func() {
			Expect(detect("123", 1).Status).To(Equal("pending"))
			Expect(detect("123", 1).Status).To(Equal("pending"))
			Expect(detect("123", 1).Status).To(Equal("pending"))
			Expect(resolver.callCount).To(BeZero())
		})
	})

	Describe("GET /api/products/{code}", func() {
		BeforeEach(func() {
			db.history["4006381333931"] = decimal.RequireFromString("5.50")
			do("GET", "/api/products/4006381333931", nil)
		})

		It("returns the confirmation seed with the history prefill", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var seed ConfirmationSeed
			Expect(json.Unmarshal(recorder.Body.Bytes(), &seed)).To(Succeed())
			Expect(seed.Name).To(Equal("Chocolate Bar"))
			Expect(seed.LastPrice).NotTo(BeNil())
			Expect(seed.LastPrice.Equal(decimal.RequireFromString("5.50"))).To(BeTrue())
		})
	})

	Describe("GET /api/products/manual", func() {
		BeforeEach(func() {
			do("GET", "/api/products/manual", nil)
		})

		It("returns the manual-entry seed without resolving", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var seed ConfirmationSeed
			Expect(json.Unmarshal(recorder.Body.Bytes(), &seed)).To(Succeed())
			Expect(seed.Code).To(Equal(ManualEntryCode))
			Expect(seed.Manual).To(BeTrue())
			Expect(resolver.callCount).To(BeZero())
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			service := NewService(db, resolver)
			server = NewServer(service, controller, BasicAuth{Username: "user", Password: "pass"})
		})

		It("rejects requests without credentials", func() {
			do("GET", "/api/list", nil)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(recorder.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts requests with the configured credentials", func() {
			req := httptest.NewRequest("GET", "/api/list", nil)
			req.SetBasicAuth("user", "pass")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/list", nil)
			req.SetBasicAuth("user", "wrong")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
