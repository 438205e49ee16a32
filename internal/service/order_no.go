package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

func generatePaymentOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("PAY%s%s", now, randNumericCode(6))
}

func generateRefundOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("RFD%s%s", now, randNumericCode(6))
}

func generateRiskRecordID() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("RSK%s%s", now, randNumericCode(6))
}

func generateRiskRuleID() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("RULE%s%s", now, randNumericCode(4))
}

func randNumericCode(length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(strconv.FormatInt(n.Int64(), 10))
	}
	return b.String()
}
