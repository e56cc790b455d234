package enums

import "fmt"

// PaymentGateway identifies a configured payment provider.
type PaymentGateway string

const (
	GatewayFlutterwave  PaymentGateway = "flutterwave"
	GatewayStripe       PaymentGateway = "stripe"
	GatewayBankTransfer PaymentGateway = "bank_transfer"
)

var validPaymentGateways = []PaymentGateway{
	GatewayFlutterwave,
	GatewayStripe,
	GatewayBankTransfer,
}

func (g PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// IsInstant reports whether the provider settles through webhooks rather than
// manual review.
func (g PaymentGateway) IsInstant() bool {
	return g == GatewayFlutterwave || g == GatewayStripe
}

func ParsePaymentGateway(value string) (PaymentGateway, error) {
	for _, candidate := range validPaymentGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}
