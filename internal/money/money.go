package money

import (
	"fmt"
	"strconv"
)

// Kobo is a monetary amount in the smallest currency unit (1 naira = 100 kobo).
// All stored and computed amounts use this type; floats never enter the money path.
type Kobo int64

// SplitInstallments divides a total into two installments. The first installment
// is percent% of the total (integer division); the second is always the remainder
// so the two always sum back to the total.
func SplitInstallments(total Kobo, percent int) (first, second Kobo) {
	if total <= 0 {
		return 0, 0
	}
	if percent <= 0 {
		percent = 50
	}
	if percent > 100 {
		percent = 100
	}
	first = total * Kobo(percent) / 100
	second = total - first
	return first, second
}

// FormatNaira renders a kobo amount as a human-readable naira string,
// e.g. 250000 -> "₦2,500.00". Used only at the response boundary.
func FormatNaira(amount Kobo) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	naira := int64(amount) / 100
	kobo := int64(amount) % 100

	grouped := groupThousands(naira)
	s := fmt.Sprintf("₦%s.%02d", grouped, kobo)
	if negative {
		return "-" + s
	}
	return s
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
