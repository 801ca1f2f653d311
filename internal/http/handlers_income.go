package http

import (
	"net/http"

	"expensedash/internal/log"
)

// handleSetIncome stores the monthly income. A value the expense service did
// not confirm is still applied locally and reported as a warning.
func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}

	amount, err := ParseIncome(p)
	if err != nil {
		s.writeStoreError(w, r, log.OpIncome, err)
		return
	}

	persisted, err := s.store.SetIncome(r.Context(), amount)
	if err != nil {
		s.writeStoreError(w, r, log.OpIncome, err)
		return
	}

	resp := NewHTMXResponse().TriggerIncomeUpdated(amount.String())
	if persisted {
		resp.TriggerSuccessNotification("Income updated")
	} else {
		resp.TriggerWarningNotification("Income saved locally, the expense service did not confirm it")
	}
	resp.Write(w)
}
