package domain

import "sort"

type BankCode string

const (
	BankBCA     BankCode = "bca"
	BankBNI     BankCode = "bni"
	BankBRI     BankCode = "bri"
	BankPermata BankCode = "permata"
	BankCIMB    BankCode = "cimb"
	BankMandiri BankCode = "mandiri"
)

var bankDisplayNames = map[BankCode]string{
	BankBCA:     "Bank Central Asia",
	BankBNI:     "Bank Negara Indonesia",
	BankBRI:     "Bank Rakyat Indonesia",
	BankPermata: "Bank Permata",
	BankCIMB:    "CIMB Niaga",
	BankMandiri: "Bank Mandiri",
}

func (b BankCode) IsValid() bool {
	_, ok := bankDisplayNames[b]
	return ok
}

func (b BankCode) DisplayName() string {
	if name, ok := bankDisplayNames[b]; ok {
		return name
	}
	return string(b)
}

// SupportedBanks returns the bank codes in a stable order.
func SupportedBanks() []BankCode {
	banks := make([]BankCode, 0, len(bankDisplayNames))
	for b := range bankDisplayNames {
		banks = append(banks, b)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i] < banks[j] })
	return banks
}
