package bank

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("bank gateway config invalid")
	ErrRequestFailed    = errors.New("bank gateway request failed")
	ErrResponseInvalid  = errors.New("bank gateway response invalid")
	ErrSignatureInvalid = errors.New("bank gateway signature invalid")
)

// Config 银行卡网关配置。网关走商户密钥 MD5 签名的表单协议。
type Config struct {
	GatewayURL  string `json:"gateway_url"`
	MerchantID  string `json:"merchant_id"`
	MerchantKey string `json:"merchant_key"`
	NotifyURL   string `json:"notify_url"`
	ReturnURL   string `json:"return_url"`
	PayPath     string `json:"pay_path"`
	RefundPath  string `json:"refund_path"`
	QueryPath   string `json:"query_path"`
}

// CreateInput 银行网关下单输入。
type CreateInput struct {
	OrderNo   string
	Amount    string
	Subject   string
	ClientIP  string
	NotifyURL string
	ReturnURL string
}

// CreateResult 银行网关下单返回。收银台跳转地址携带签名后的下单参数。
type CreateResult struct {
	PayURL string
	Raw    map[string]interface{}
}

// RefundInput 银行网关退款输入。
type RefundInput struct {
	OrderNo      string
	RefundNo     string
	RefundAmount string
	Reason       string
	NotifyURL    string
}

// RefundResult 银行网关退款受理返回。
type RefundResult struct {
	BankRefundRef string
	Status        string
	Raw           map[string]interface{}
}

// QueryResult 银行网关状态查询返回。支付与退款共用，按请求单号区分。
type QueryResult struct {
	TradeStatus string
	BankRef     string
	Amount      string
	SettledAt   *time.Time
	Raw         map[string]interface{}
}

// CallbackNotification 银行网关回调解析结果。
type CallbackNotification struct {
	OrderNo     string
	RefundNo    string
	TradeStatus string
	BankRef     string
	Amount      string
	SettledAt   *time.Time
	Raw         map[string]interface{}
}

// IsRefund 回调是否属于退款单。
func (n *CallbackNotification) IsRefund() bool {
	return strings.TrimSpace(n.RefundNo) != ""
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置完整性。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return fmt.Errorf("%w: gateway_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.GatewayURL)); err != nil {
		return fmt.Errorf("%w: gateway_url is invalid", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantKey) == "" {
		return fmt.Errorf("%w: merchant_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.NotifyURL) == "" {
		return fmt.Errorf("%w: notify_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.NotifyURL)); err != nil {
		return fmt.Errorf("%w: notify_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// CreatePayment 构建银行收银台跳转地址。网关侧完成持卡人鉴权后异步回调。
func CreatePayment(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	input.OrderNo = strings.TrimSpace(input.OrderNo)
	input.Amount = strings.TrimSpace(input.Amount)
	if input.OrderNo == "" || input.Amount == "" {
		return nil, fmt.Errorf("%w: order_no/amount is required", ErrConfigInvalid)
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount is invalid", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.Subject) == "" {
		input.Subject = input.OrderNo
	}

	notifyURL := strings.TrimSpace(input.NotifyURL)
	if notifyURL == "" {
		notifyURL = cfg.NotifyURL
	}
	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = cfg.ReturnURL
	}

	params := map[string]string{
		"merchant_id":  cfg.MerchantID,
		"out_trade_no": input.OrderNo,
		"amount":       amount.Round(2).StringFixed(2),
		"subject":      strings.TrimSpace(input.Subject),
		"notify_url":   notifyURL,
		"timestamp":    strconv.FormatInt(time.Now().Unix(), 10),
	}
	if returnURL != "" {
		params["return_url"] = returnURL
	}
	if strings.TrimSpace(input.ClientIP) != "" {
		params["client_ip"] = strings.TrimSpace(input.ClientIP)
	}
	params["sign"] = signMD5(buildSignContent(params) + cfg.MerchantKey)
	params["sign_type"] = "MD5"

	payURL := buildFormURL(buildEndpoint(cfg.GatewayURL, cfg.PayPath), params)
	raw := make(map[string]interface{}, len(params)+1)
	for key, value := range params {
		raw[key] = value
	}
	raw["pay_url"] = payURL
	return &CreateResult{PayURL: payURL, Raw: raw}, nil
}

// CreateRefund 向银行网关提交退款请求。out_refund_no 保证重复提交幂等。
func CreateRefund(ctx context.Context, cfg *Config, input RefundInput) (*RefundResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	input.OrderNo = strings.TrimSpace(input.OrderNo)
	input.RefundNo = strings.TrimSpace(input.RefundNo)
	input.RefundAmount = strings.TrimSpace(input.RefundAmount)
	if input.OrderNo == "" || input.RefundNo == "" {
		return nil, fmt.Errorf("%w: order_no/refund_no is required", ErrConfigInvalid)
	}
	amount, err := decimal.NewFromString(input.RefundAmount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: refund_amount is invalid", ErrConfigInvalid)
	}

	notifyURL := strings.TrimSpace(input.NotifyURL)
	if notifyURL == "" {
		notifyURL = cfg.NotifyURL
	}
	params := map[string]string{
		"merchant_id":   cfg.MerchantID,
		"out_trade_no":  input.OrderNo,
		"out_refund_no": input.RefundNo,
		"refund_amount": amount.Round(2).StringFixed(2),
		"notify_url":    notifyURL,
		"timestamp":     strconv.FormatInt(time.Now().Unix(), 10),
	}
	if strings.TrimSpace(input.Reason) != "" {
		params["reason"] = strings.TrimSpace(input.Reason)
	}
	params["sign"] = signMD5(buildSignContent(params) + cfg.MerchantKey)
	params["sign_type"] = "MD5"

	raw, err := postForm(ctx, buildEndpoint(cfg.GatewayURL, cfg.RefundPath), params)
	if err != nil {
		return nil, err
	}
	if code := strings.ToUpper(strings.TrimSpace(readString(raw, "code"))); code != constants.BankCallbackSuccess {
		errMsg := strings.TrimSpace(readString(raw, "msg"))
		if errMsg == "" {
			errMsg = "code=" + code
		}
		return nil, fmt.Errorf("%w: %s", ErrResponseInvalid, errMsg)
	}
	return &RefundResult{
		BankRefundRef: strings.TrimSpace(readString(raw, "bank_refund_ref")),
		Status:        strings.ToUpper(strings.TrimSpace(readString(raw, "status"))),
		Raw:           raw,
	}, nil
}

// QueryPayment 查询银行网关支付状态。
func QueryPayment(ctx context.Context, cfg *Config, orderNo string) (*QueryResult, error) {
	return query(ctx, cfg, map[string]string{"out_trade_no": strings.TrimSpace(orderNo)})
}

// QueryRefund 查询银行网关退款状态。
func QueryRefund(ctx context.Context, cfg *Config, refundNo string) (*QueryResult, error) {
	return query(ctx, cfg, map[string]string{"out_refund_no": strings.TrimSpace(refundNo)})
}

func query(ctx context.Context, cfg *Config, keys map[string]string) (*QueryResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	params := map[string]string{
		"merchant_id": cfg.MerchantID,
		"timestamp":   strconv.FormatInt(time.Now().Unix(), 10),
	}
	for key, value := range keys {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrConfigInvalid, key)
		}
		params[key] = strings.TrimSpace(value)
	}
	params["sign"] = signMD5(buildSignContent(params) + cfg.MerchantKey)
	params["sign_type"] = "MD5"

	raw, err := postForm(ctx, buildEndpoint(cfg.GatewayURL, cfg.QueryPath), params)
	if err != nil {
		return nil, err
	}
	if code := strings.ToUpper(strings.TrimSpace(readString(raw, "code"))); code != constants.BankCallbackSuccess {
		errMsg := strings.TrimSpace(readString(raw, "msg"))
		if errMsg == "" {
			errMsg = "code=" + code
		}
		return nil, fmt.Errorf("%w: %s", ErrResponseInvalid, errMsg)
	}
	return &QueryResult{
		TradeStatus: strings.ToUpper(strings.TrimSpace(readString(raw, "trade_status"))),
		BankRef:     strings.TrimSpace(readString(raw, "bank_ref")),
		Amount:      strings.TrimSpace(readString(raw, "amount")),
		SettledAt:   parseUnixTime(readString(raw, "settled_at")),
		Raw:         raw,
	}, nil
}

// VerifyCallback 校验银行网关回调签名。
func VerifyCallback(cfg *Config, form map[string][]string) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if len(form) == 0 {
		return fmt.Errorf("%w: callback form is empty", ErrSignatureInvalid)
	}
	sign := strings.TrimSpace(firstFormValue(form, "sign"))
	if sign == "" {
		return fmt.Errorf("%w: sign is required", ErrSignatureInvalid)
	}
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	expected := signMD5(buildSignContent(params) + cfg.MerchantKey)
	if !strings.EqualFold(expected, sign) {
		return fmt.Errorf("%w: sign mismatch", ErrSignatureInvalid)
	}
	return nil
}

// ParseCallback 解析银行网关回调表单。调用方需先通过 VerifyCallback。
func ParseCallback(form map[string][]string) (*CallbackNotification, error) {
	if len(form) == 0 {
		return nil, fmt.Errorf("%w: callback form is empty", ErrResponseInvalid)
	}
	raw := make(map[string]interface{}, len(form))
	for key, values := range form {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}
	notification := &CallbackNotification{
		OrderNo:     strings.TrimSpace(firstFormValue(form, "out_trade_no")),
		RefundNo:    strings.TrimSpace(firstFormValue(form, "out_refund_no")),
		TradeStatus: strings.ToUpper(strings.TrimSpace(firstFormValue(form, "trade_status"))),
		BankRef:     strings.TrimSpace(firstFormValue(form, "bank_ref")),
		Amount:      strings.TrimSpace(firstFormValue(form, "amount")),
		SettledAt:   parseUnixTime(firstFormValue(form, "settled_at")),
		Raw:         raw,
	}
	if notification.OrderNo == "" && notification.RefundNo == "" {
		return nil, fmt.Errorf("%w: out_trade_no/out_refund_no is required", ErrResponseInvalid)
	}
	if notification.TradeStatus == "" {
		return nil, fmt.Errorf("%w: trade_status is required", ErrResponseInvalid)
	}
	return notification, nil
}

func buildEndpoint(gatewayURL, apiPath string) string {
	base := strings.TrimRight(strings.TrimSpace(gatewayURL), "/")
	path := strings.TrimSpace(apiPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func buildFormURL(endpoint string, params map[string]string) string {
	values := url.Values{}
	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		values.Set(key, value)
	}
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + values.Encode()
	}
	return endpoint + "?" + values.Encode()
}

func postForm(ctx context.Context, endpoint string, params map[string]string) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	values := url.Values{}
	for key, value := range params {
		if value == "" {
			continue
		}
		values.Set(key, value)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed", ErrRequestFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func buildSignContent(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		if key == "sign" || key == "sign_type" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	return strings.Join(pairs, "&")
}

func signMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func firstFormValue(form map[string][]string, key string) string {
	if values, ok := form[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", value)
}

func parseUnixTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return nil
	}
	parsed := time.Unix(seconds, 0)
	return &parsed
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimRight(strings.TrimSpace(c.GatewayURL), "/")
	c.MerchantID = strings.TrimSpace(c.MerchantID)
	c.MerchantKey = strings.TrimSpace(c.MerchantKey)
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
	c.PayPath = strings.TrimSpace(c.PayPath)
	c.RefundPath = strings.TrimSpace(c.RefundPath)
	c.QueryPath = strings.TrimSpace(c.QueryPath)
	if c.PayPath == "" {
		c.PayPath = "/gateway/pay"
	}
	if c.RefundPath == "" {
		c.RefundPath = "/gateway/refund"
	}
	if c.QueryPath == "" {
		c.QueryPath = "/gateway/query"
	}
}
