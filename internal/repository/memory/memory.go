package memory

import (
	"lc_escrow/internal/repository"
)

var (
	_ repository.RoleRepository           = (*RoleRepository)(nil)
	_ repository.ProductRepository        = (*ProductRepository)(nil)
	_ repository.LetterOfCreditRepository = (*LetterOfCreditRepository)(nil)
	_ repository.SettlementRepository     = (*SettlementRepository)(nil)
)
