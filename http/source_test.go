package http_test

import (
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/http"
	"github.com/pilosa/mdk/test"
)

const record = "00071nam a2200049 a 4500" +
	"001000400000" + "100001700004" + "\x1e" +
	"123\x1e" +
	"01\x1faHello\x1fbWorld\x1e" +
	"\x1d"

func newRawSource(t *testing.T) *http.RawSource {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	test.ErrNil(t, err, "listening")
	rs, err := http.NewRawSource(http.WithListener(ln), http.WithFraming(mdk.AutoFraming))
	test.ErrNil(t, err, "getting raw source")
	return rs
}

func TestRawSource(t *testing.T) {
	rs := newRawSource(t)
	src, err := http.NewSource(rs, "iso2709", mdk.AutoFraming)
	test.ErrNil(t, err, "NewSource")

	status := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+rs.Addr()+"/records", "application/marc", strings.NewReader(record+record))
		if err != nil {
			status <- 0
		} else {
			resp.Body.Close()
			status <- resp.StatusCode
		}
		rs.Close()
	}()

	var items []*mdk.WorkItem
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		items = append(items, rec.(*mdk.WorkItem))
	}
	test.MustBe(t, <-status, gohttp.StatusAccepted)
	test.MustBe(t, len(items), 2)
	test.MustBe(t, items[0].Origin, "post-1#0")
	test.MustBe(t, items[1].Origin, "post-1#71")
	test.MustBe(t, string(items[1].Raw), record)
}

func TestRawSourceRejects(t *testing.T) {
	rs := newRawSource(t)
	defer rs.Close()

	tests := []struct {
		method string
		data   string
		exp    int
	}{
		{method: "GET", exp: gohttp.StatusMethodNotAllowed},
		{method: "POST", data: "  \n", exp: gohttp.StatusBadRequest},
		{method: "POST", data: "not a record at all", exp: gohttp.StatusBadRequest},
	}
	for _, tst := range tests {
		t.Run(tst.method+" "+tst.data, func(t *testing.T) {
			w := httptest.NewRecorder()
			rs.ServeHTTP(w, httptest.NewRequest(tst.method, "/", strings.NewReader(tst.data)))
			test.MustBe(t, w.Code, tst.exp)
		})
	}
}

func TestRawSourceClosed(t *testing.T) {
	rs := newRawSource(t)
	test.ErrNil(t, rs.Close(), "Close")
	_, err := rs.NextReader()
	test.MustBe(t, err, io.EOF)

	w := httptest.NewRecorder()
	rs.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(record)))
	test.MustBe(t, w.Code, gohttp.StatusServiceUnavailable)
}
