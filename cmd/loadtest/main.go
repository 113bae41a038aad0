package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type checkout struct {
	CustomerFullName string `json:"customer_full_name"`
	CustomerEmail    string `json:"customer_email"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerAddress  string `json:"customer_address"`
	CustomerCity     string `json:"customer_city"`
	CustomerCountry  string `json:"customer_country"`
	ProductID        int    `json:"product_id"`
	ProductSize      string `json:"product_size,omitempty"`
	Quantity         int    `json:"quantity"`
	IsBatchOrder     bool   `json:"is_batch_order"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	size := flag.String("size", "", "product size; empty for products without sizes")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token; used to seed a product when -seed is set")
	seed := flag.Int("seed", 0, "create a fresh product with this much stock in -size and test against it")

	// 超卖测试参数：200 个顾客并发抢同一尺码
	nCustomers := flag.Int("customers", 200, "distinct customers")
	concurrency := flag.Int("c", 50, "max concurrency")
	burst := flag.Int("burst", 20, "orders from one customer for the rate limit and batch test")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	if *seed > 0 {
		id, err := seedProduct(client, *baseURL, *adminToken, *size, *seed)
		if err != nil {
			panic(fmt.Sprintf("seed failed: %v", err))
		}
		*productID = id
		fmt.Printf("seeded product=%d size=%q stock=%d\n", id, *size, *seed)
	}

	before, err := getStock(client, *baseURL, *productID, *size)
	if err != nil {
		panic(fmt.Sprintf("stock check failed: %v", err))
	}

	// 1) 不超卖测试：不同顾客并发
	fmt.Printf("start oversell test: product=%d size=%q customers=%d concurrency=%d stock=%d\n",
		*productID, *size, *nCustomers, *concurrency, before)
	results := run(client, *baseURL, *nCustomers, *concurrency, func(i int) checkout {
		return newCheckout(*productID, *size, fmt.Sprintf("loadtest-%d@example.com", i), false)
	})
	created := printSummary("oversell", results)

	after, err := getStock(client, *baseURL, *productID, *size)
	if err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Printf("stock before=%d after=%d created=%d\n", before, after, created)
		if after < 0 || int64(created) != before-after {
			fmt.Println("OVERSELL DETECTED")
		}
	}

	// 2) 同一顾客连续下单：触发限流（需要 Redis），并产生一组批量订单通知
	fmt.Printf("\nstart same-customer burst: %d requests\n", *burst)
	results = run(client, *baseURL, *burst, *burst, func(int) checkout {
		return newCheckout(*productID, *size, "loadtest-burst@example.com", true)
	})
	printSummary("burst", results)
}

func newCheckout(productID int, size, email string, batch bool) checkout {
	return checkout{
		CustomerFullName: "Load Test",
		CustomerEmail:    email,
		CustomerPhone:    "000",
		CustomerAddress:  "Rruga e Testit 1",
		CustomerCity:     "Tirana",
		CustomerCountry:  "albania",
		ProductID:        productID,
		ProductSize:      size,
		Quantity:         1,
		IsBatchOrder:     batch,
	}
}

func run(client *http.Client, baseURL string, total, concurrency int, build func(i int) checkout) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = post(client, baseURL+"/api/orders", build(idx), nil)
		}(i)
	}

	wg.Wait()
	return results
}

func post(client *http.Client, url string, body any, headers map[string]string) Result {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(out)}
}

// printSummary 聚合输出不同状态码分布，返回 201 数量。
func printSummary(name string, results []Result) int {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
	return count[http.StatusCreated]
}

func seedProduct(client *http.Client, baseURL, adminToken, size string, stock int) (int, error) {
	body := map[string]any{"name": fmt.Sprintf("Load Test %d", time.Now().Unix()), "price": "10.00"}
	if size == "" {
		body["stock"] = stock
	} else {
		body["size_stocks"] = []map[string]any{{"size": size, "quantity": stock}}
	}
	r := post(client, baseURL+"/api/admin/products", body, map[string]string{"X-Admin-Token": adminToken})
	if r.Err != nil {
		return 0, r.Err
	}
	if r.Status != http.StatusCreated {
		return 0, fmt.Errorf("status=%d body=%s", r.Status, r.Body)
	}
	var out struct {
		Data struct {
			ID int `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(r.Body), &out); err != nil {
		return 0, err
	}
	return out.Data.ID, nil
}

// getStock 查询指定尺码当前库存，用于压测后校验是否出现超卖。
func getStock(client *http.Client, baseURL string, productID int, size string) (int64, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/products/%d/stock", baseURL, productID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Sizes []struct {
			Size     string `json:"size"`
			Quantity int64  `json:"quantity"`
		} `json:"sizes"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	for _, s := range out.Sizes {
		if s.Size == size {
			return s.Quantity, nil
		}
	}
	return 0, fmt.Errorf("size %q not found", size)
}
