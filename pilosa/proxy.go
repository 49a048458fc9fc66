// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package pilosa

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Proxy forwards requests to Pilosa. In PQL queries, quoted row values like
// Row(creator-name="Smith") are translated to row ids, and the row ids in
// TopN results get the value they stand for as "key".
type Proxy struct {
	Pilosa     string
	Translator mdk.Translator
	Client     *http.Client
	Log        mdk.Logger
}

// NewProxy creates a Proxy forwarding to the Pilosa host.
func NewProxy(host string, tr mdk.Translator, log mdk.Logger) *Proxy {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if log == nil {
		log = mdk.NopLogger{}
	}
	return &Proxy{Pilosa: strings.TrimSuffix(host, "/"), Translator: tr, Client: &http.Client{}, Log: log}
}

var (
	rowValue = regexp.MustCompile(`Row\(\s*([a-z][a-z0-9_-]*)\s*=\s*"((?:[^"\\]|\\.)*)"`)
	topN     = regexp.MustCompile(`^\s*TopN\(\s*([a-z][a-z0-9_-]*)`)
)

// TranslateQuery replaces quoted row values with their ids.
func (p *Proxy) TranslateQuery(q string) (string, error) {
	var err error
	out := rowValue.ReplaceAllStringFunc(q, func(m string) string {
		if err != nil {
			return m
		}
		sub := rowValue.FindStringSubmatch(m)
		var val string
		val, err = strconv.Unquote(`"` + sub[2] + `"`)
		if err != nil {
			err = errors.Wrapf(err, "unquoting %s", sub[2])
			return m
		}
		var id uint64
		id, err = p.Translator.GetID(sub[1], val)
		if err != nil {
			err = errors.Wrapf(err, "translating %s=%q", sub[1], val)
			return m
		}
		return "Row(" + sub[1] + "=" + strconv.FormatUint(id, 10)
	})
	return out, err
}

// splitCalls splits a query into its top level calls.
func splitCalls(q string) []string {
	var calls []string
	depth, start := 0, 0
	quoted, escaped := false, false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				calls = append(calls, strings.TrimSpace(q[start:i+1]))
				start = i + 1
			}
		}
	}
	return calls
}

type queryResponse struct {
	Results []json.RawMessage `json:"results"`
	Error   string            `json:"error,omitempty"`
}

type pair struct {
	ID    uint64 `json:"id"`
	Key   string `json:"key,omitempty"`
	Count uint64 `json:"count"`
}

// TranslateResults adds keys to the TopN results of a response to query.
func (p *Proxy) TranslateResults(query string, body []byte) ([]byte, error) {
	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	calls := splitCalls(query)
	for i, res := range resp.Results {
		if i >= len(calls) {
			break
		}
		m := topN.FindStringSubmatch(calls[i])
		if m == nil {
			continue
		}
		var pairs []pair
		if err := json.Unmarshal(res, &pairs); err != nil {
			return nil, errors.Wrapf(err, "decoding TopN result %d", i)
		}
		for j := range pairs {
			key, err := p.Translator.Get(m[1], pairs[j].ID)
			if err != nil {
				return nil, errors.Wrapf(err, "translating %s row %d", m[1], pairs[j].ID)
			}
			pairs[j].Key = key
		}
		b, err := json.Marshal(pairs)
		if err != nil {
			return nil, err
		}
		resp.Results[i] = b
	}
	return json.Marshal(resp)
}

// ServeHTTP implements http.Handler. Only POST requests to a query
// endpoint are translated, everything else is passed through.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	body, err := ioutil.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusInternalServerError)
		return
	}
	isQuery := req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/query")
	query := string(body)
	if isQuery {
		query, err = p.TranslateQuery(query)
		if err != nil {
			http.Error(w, "mapping request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	// forward the request and get the pilosa response
	preq, err := http.NewRequest(req.Method, p.Pilosa+req.URL.RequestURI(), strings.NewReader(query))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	preq.Header = req.Header.Clone()
	resp, err := p.Client.Do(preq)
	if err != nil {
		p.Log.Printf("proxying to %s: %v", p.Pilosa, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer resp.Body.Close()
	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "reading response: "+err.Error(), http.StatusBadGateway)
		return
	}
	if isQuery && resp.StatusCode == http.StatusOK {
		mapped, err := p.TranslateResults(query, respBody)
		if err != nil {
			http.Error(w, "mapping result: "+err.Error(), http.StatusInternalServerError)
			return
		}
		respBody = mapped
	}
	for k, v := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, bytes.NewReader(respBody)); err != nil {
		p.Log.Printf("writing response: %v", err)
	}
}
