package envelope

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
)

// Typed payload codecs. Both ends of the channel use these so the field
// names stay agreed upon in exactly one place. Decoders fail fast with
// DECODE_ERROR on malformed payloads.

// EncodeInitCardRequest builds the initCardView payload.
func EncodeInitCardRequest(cfg config.SessionConfig, opts capability.CardOptions) map[string]any {
	networks := make([]any, 0, len(opts.AllowedNetworks))
	for _, n := range opts.AllowedNetworks {
		networks = append(networks, n)
	}
	return map[string]any{
		"config": encodeSessionConfig(cfg),
		"cardOptions": map[string]any{
			"requireCvc":      opts.RequireCVC,
			"allowedNetworks": networks,
		},
	}
}

// DecodeInitCardRequest parses the initCardView payload.
func DecodeInitCardRequest(s *structpb.Struct) (config.SessionConfig, capability.CardOptions, error) {
	cfg, err := decodeSessionConfig(s)
	if err != nil {
		return config.SessionConfig{}, capability.CardOptions{}, err
	}
	opts := capability.CardOptions{}
	if raw := field(s, "cardOptions"); raw != nil {
		o := raw.GetStructValue()
		if o == nil {
			return config.SessionConfig{}, capability.CardOptions{}, bridgeerr.Decode("cardOptions must be a mapping")
		}
		opts.RequireCVC = field(o, "requireCvc").GetBoolValue()
		for _, v := range field(o, "allowedNetworks").GetListValue().GetValues() {
			opts.AllowedNetworks = append(opts.AllowedNetworks, v.GetStringValue())
		}
	}
	return cfg, opts, nil
}

// EncodeInitWalletRequest builds the initGooglePay payload.
func EncodeInitWalletRequest(cfg config.SessionConfig, opts capability.WalletOptions) map[string]any {
	methods := make([]any, 0, len(opts.AllowedMethods))
	for _, m := range opts.AllowedMethods {
		methods = append(methods, m)
	}
	return map[string]any{
		"config": encodeSessionConfig(cfg),
		"walletOptions": map[string]any{
			"merchantName":   opts.MerchantName,
			"allowedMethods": methods,
		},
	}
}

// DecodeInitWalletRequest parses the initGooglePay payload.
func DecodeInitWalletRequest(s *structpb.Struct) (config.SessionConfig, capability.WalletOptions, error) {
	cfg, err := decodeSessionConfig(s)
	if err != nil {
		return config.SessionConfig{}, capability.WalletOptions{}, err
	}
	opts := capability.WalletOptions{}
	if raw := field(s, "walletOptions"); raw != nil {
		o := raw.GetStructValue()
		if o == nil {
			return config.SessionConfig{}, capability.WalletOptions{}, bridgeerr.Decode("walletOptions must be a mapping")
		}
		opts.MerchantName = field(o, "merchantName").GetStringValue()
		for _, v := range field(o, "allowedMethods").GetListValue().GetValues() {
			opts.AllowedMethods = append(opts.AllowedMethods, v.GetStringValue())
		}
	}
	return cfg, opts, nil
}

// EncodeSheetRequest builds the launchGooglePaySheet payload.
func EncodeSheetRequest(req capability.SheetRequest) map[string]any {
	return map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"label":    req.Label,
	}
}

// DecodeSheetRequest parses the launchGooglePaySheet payload.
func DecodeSheetRequest(s *structpb.Struct) (capability.SheetRequest, error) {
	if s == nil {
		return capability.SheetRequest{}, bridgeerr.Decode("sheet request payload is required")
	}
	amount := field(s, "amount")
	if amount == nil {
		return capability.SheetRequest{}, bridgeerr.Decode("sheet request: amount is required")
	}
	currency := field(s, "currency").GetStringValue()
	if currency == "" {
		return capability.SheetRequest{}, bridgeerr.Decode("sheet request: currency is required")
	}
	return capability.SheetRequest{
		Amount:   int64(amount.GetNumberValue()),
		Currency: currency,
		Label:    field(s, "label").GetStringValue(),
	}, nil
}

// TokenizedEvent is the authoritative tokenize result.
type TokenizedEvent struct {
	Token string
	Brand string
	Last4 string
}

// EncodeTokenized builds the cardTokenized payload.
func EncodeTokenized(t capability.Token) map[string]any {
	return map[string]any{
		"token": t.ID,
		"card": map[string]any{
			"brand": t.Brand,
			"last4": t.Last4,
		},
	}
}

// DecodeTokenizedEvent parses the cardTokenized payload.
func DecodeTokenizedEvent(s *structpb.Struct) (TokenizedEvent, error) {
	token := field(s, "token").GetStringValue()
	if token == "" {
		return TokenizedEvent{}, bridgeerr.Decode("cardTokenized: token is required")
	}
	ev := TokenizedEvent{Token: token}
	if card := field(s, "card").GetStructValue(); card != nil {
		ev.Brand = field(card, "brand").GetStringValue()
		ev.Last4 = field(card, "last4").GetStringValue()
	}
	return ev, nil
}

// PaymentErrorEvent is the authoritative failure for any operation.
type PaymentErrorEvent struct {
	Code    string
	Message string
}

// EncodePaymentError builds the paymentError payload.
func EncodePaymentError(err error) map[string]any {
	be := bridgeerr.From(err)
	return map[string]any{"code": string(be.Code), "message": be.Message}
}

// DecodePaymentErrorEvent parses the paymentError payload.
func DecodePaymentErrorEvent(s *structpb.Struct) (PaymentErrorEvent, error) {
	code := field(s, "code").GetStringValue()
	if code == "" {
		return PaymentErrorEvent{}, bridgeerr.Decode("paymentError: code is required")
	}
	return PaymentErrorEvent{Code: code, Message: field(s, "message").GetStringValue()}, nil
}

// SessionDataEvent is the authoritative submit result for the session-data
// path; payment is intentionally not completed.
type SessionDataEvent struct {
	SessionData string
}

// EncodeSessionData builds the sessionDataReady payload.
func EncodeSessionData(data string) map[string]any {
	return map[string]any{"sessionData": data}
}

// DecodeSessionDataEvent parses the sessionDataReady payload.
func DecodeSessionDataEvent(s *structpb.Struct) (SessionDataEvent, error) {
	data := field(s, "sessionData").GetStringValue()
	if data == "" {
		return SessionDataEvent{}, bridgeerr.Decode("sessionDataReady: sessionData is required")
	}
	return SessionDataEvent{SessionData: data}, nil
}

// PaymentSuccessEvent is the authoritative settle result.
type PaymentSuccessEvent struct {
	PaymentID string
}

// EncodePaymentSuccess builds the paymentSuccess payload.
func EncodePaymentSuccess(paymentID string) map[string]any {
	return map[string]any{"paymentId": paymentID}
}

// DecodePaymentSuccessEvent parses the paymentSuccess payload.
func DecodePaymentSuccessEvent(s *structpb.Struct) (PaymentSuccessEvent, error) {
	id := field(s, "paymentId").GetStringValue()
	if id == "" {
		return PaymentSuccessEvent{}, bridgeerr.Decode("paymentSuccess: paymentId is required")
	}
	return PaymentSuccessEvent{PaymentID: id}, nil
}

// DecodeBoolResult parses a boolean call result.
func DecodeBoolResult(s *structpb.Struct) (bool, error) {
	v := field(s, "value")
	if v == nil {
		return false, bridgeerr.Decode("result: value is required")
	}
	if _, ok := v.GetKind().(*structpb.Value_BoolValue); !ok {
		return false, bridgeerr.Decode("result: value must be a boolean")
	}
	return v.GetBoolValue(), nil
}

// BoolResult builds a boolean call result payload.
func BoolResult(v bool) map[string]any {
	return map[string]any{"value": v}
}

// DecodeStatusResult parses the status field of a provisional result.
func DecodeStatusResult(s *structpb.Struct) (string, error) {
	status := field(s, "status").GetStringValue()
	if status == "" {
		return "", bridgeerr.Decode("result: status is required")
	}
	return status, nil
}

func encodeSessionConfig(cfg config.SessionConfig) map[string]any {
	appearance := make(map[string]any, len(cfg.Appearance))
	for k, v := range cfg.Appearance {
		appearance[k] = v
	}
	return map[string]any{
		"merchantId":  cfg.MerchantID,
		"secret":      cfg.Secret,
		"publicKey":   cfg.PublicKey,
		"environment": cfg.Environment,
		"appearance":  appearance,
	}
}

func decodeSessionConfig(s *structpb.Struct) (config.SessionConfig, error) {
	if s == nil {
		return config.SessionConfig{}, bridgeerr.Decode("init payload is required")
	}
	raw := field(s, "config")
	if raw == nil {
		return config.SessionConfig{}, bridgeerr.Decode("init payload: config is required")
	}
	o := raw.GetStructValue()
	if o == nil {
		return config.SessionConfig{}, bridgeerr.Decode("init payload: config must be a mapping")
	}
	cfg := config.SessionConfig{
		MerchantID:  field(o, "merchantId").GetStringValue(),
		Secret:      field(o, "secret").GetStringValue(),
		PublicKey:   field(o, "publicKey").GetStringValue(),
		Environment: field(o, "environment").GetStringValue(),
	}
	if app := field(o, "appearance").GetStructValue(); app != nil {
		cfg.Appearance = make(map[string]string, len(app.GetFields()))
		for k, v := range app.GetFields() {
			cfg.Appearance[k] = v.GetStringValue()
		}
	}
	return cfg, nil
}

func field(s *structpb.Struct, name string) *structpb.Value {
	if s == nil {
		return nil
	}
	return s.GetFields()[name]
}
