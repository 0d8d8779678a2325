package ledger

// ValidateCPF checks an 11-digit CPF including both check digits.
// The first failing rule wins; the error is a *CPFError.
func ValidateCPF(cpf string) error {
	if cpf == "" {
		return &CPFError{CPF: cpf, Reason: "must not be null or empty"}
	}
	if len(cpf) != 11 {
		return &CPFError{CPF: cpf, Reason: "must contain 11 digits"}
	}
	if allSame(cpf) {
		return &CPFError{CPF: cpf, Reason: "cannot have all identical digits"}
	}
	if !allDigits(cpf) {
		return &CPFError{CPF: cpf, Reason: "must contain 11 digits"}
	}
	if checkDigit(cpf[:9], 10) != digit(cpf[9]) {
		return &CPFError{CPF: cpf, Reason: "first check digit invalid"}
	}
	if checkDigit(cpf[:10], 11) != digit(cpf[10]) {
		return &CPFError{CPF: cpf, Reason: "second check digit invalid"}
	}
	return nil
}

// checkDigit weights digits from firstWeight down to 2.
func checkDigit(digits string, firstWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += digit(digits[i]) * (firstWeight - i)
	}
	d := 11 - sum%11
	if d >= 10 {
		return 0
	}
	return d
}

func digit(b byte) int { return int(b - '0') }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
