package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// apiClient 调用管理接口，统一处理 {"code","msg","data"} 信封。
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newAPIClient(base, token string, timeout time.Duration) *apiClient {
	return &apiClient{base: base, token: token, http: &http.Client{Timeout: timeout}}
}

// call 发送请求（支持 JSON body），非 2xx 或 code != 0 时返回错误。
func (c *apiClient) call(method, path string, body any) (json.RawMessage, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Admin-Token", c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return nil, fmt.Errorf("status=%d code=%d msg=%s", resp.StatusCode, env.Code, env.Msg)
	}
	return env.Data, nil
}

// pollResult 记录单次状态查询的 HTTP 结果，便于聚合统计。
type pollResult struct {
	Status  int
	Latency time.Duration
	Err     error
}

// pollStatus 并发请求状态接口，模拟大量店面倒计时同时刷新。
func (c *apiClient) pollStatus(total, concurrency int) []pollResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]pollResult, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			resp, err := c.http.Get(c.base + "/api/auction-status")
			if err != nil {
				results[idx] = pollResult{Err: err}
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			results[idx] = pollResult{Status: resp.StatusCode, Latency: time.Since(start)}
		}(i)
	}

	wg.Wait()
	return results
}

type pollSummary struct {
	ByStatus map[int]int
	Errors   int
	Max      time.Duration
}

func summarize(results []pollResult) pollSummary {
	s := pollSummary{ByStatus: map[int]int{}}
	for _, r := range results {
		if r.Err != nil {
			s.Errors++
			continue
		}
		s.ByStatus[r.Status]++
		if r.Latency > s.Max {
			s.Max = r.Latency
		}
	}
	return s
}
