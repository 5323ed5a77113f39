package booking

import (
	"fmt"
	"sort"
	"strings"
)

const (
	paymentMethodSeparator = ","
	proofFlagSeparator     = ":"
	proofFlag              = "proof"

	// DefaultPaymentMethods is the policy used when none is configured.
	DefaultPaymentMethods = "pago_movil:proof,zelle:proof,efectivo"
)

// QuoteTotal prices a request as hourly rate times slot count.
func QuoteTotal(hourlyRate AmountCents, slotCount int) (AmountCents, error) {
	if slotCount <= 0 {
		return 0, ErrEmptySlots
	}
	if hourlyRate < 0 {
		return 0, fmt.Errorf("%w: negative hourly rate", ErrInvalidCourtRecord)
	}
	return NewAmountCents(hourlyRate.Int64() * int64(slotCount))
}

func ensureDeclaredTotal(declared AmountCents, computed AmountCents) error {
	if declared != computed {
		return fmt.Errorf("%w: declared %d, expected %d", ErrAmountMismatch, declared, computed)
	}
	return nil
}

// PaymentMethod is a configured payment channel name.
type PaymentMethod string

// String returns the method name.
func (method PaymentMethod) String() string {
	return string(method)
}

// PaymentMethodPolicy knows which payment methods exist and which need proof.
type PaymentMethodPolicy struct {
	requiresProof map[PaymentMethod]bool
}

// ParsePaymentMethodPolicy parses "name[:proof],name[:proof]".
func ParsePaymentMethodPolicy(raw string) (PaymentMethodPolicy, error) {
	policy := PaymentMethodPolicy{requiresProof: map[PaymentMethod]bool{}}
	for _, part := range strings.Split(raw, paymentMethodSeparator) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		name, flag, hasFlag := strings.Cut(trimmed, proofFlagSeparator)
		method := PaymentMethod(strings.ToLower(strings.TrimSpace(name)))
		if method == "" {
			return PaymentMethodPolicy{}, fmt.Errorf("%w: empty method name in %q", ErrInvalidPaymentPolicy, raw)
		}
		if hasFlag && strings.TrimSpace(flag) != proofFlag {
			return PaymentMethodPolicy{}, fmt.Errorf("%w: unknown flag %q for %s", ErrInvalidPaymentPolicy, flag, method)
		}
		policy.requiresProof[method] = hasFlag
	}
	if len(policy.requiresProof) == 0 {
		return PaymentMethodPolicy{}, fmt.Errorf("%w: no payment methods", ErrInvalidPaymentPolicy)
	}
	return policy, nil
}

// DefaultPaymentMethodPolicy returns the built-in policy.
func DefaultPaymentMethodPolicy() PaymentMethodPolicy {
	policy, err := ParsePaymentMethodPolicy(DefaultPaymentMethods)
	if err != nil {
		panic(err)
	}
	return policy
}

// Resolve validates a requested method and the presence of proof when required.
func (policy PaymentMethodPolicy) Resolve(raw string, proof ProofReference) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	requiresProof, known := policy.requiresProof[method]
	if !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, raw)
	}
	if requiresProof && proof.IsZero() {
		return "", fmt.Errorf("%w: %s", ErrProofRequired, method)
	}
	return method, nil
}

// Methods lists configured methods in name order.
func (policy PaymentMethodPolicy) Methods() []PaymentMethod {
	methods := make([]PaymentMethod, 0, len(policy.requiresProof))
	for method := range policy.requiresProof {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(left, right int) bool { return methods[left] < methods[right] })
	return methods
}

// RequiresProof reports whether method needs a proof reference.
func (policy PaymentMethodPolicy) RequiresProof(method PaymentMethod) bool {
	return policy.requiresProof[method]
}
