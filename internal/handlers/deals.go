package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/query"
)

// DealsHandler serves offers and the transactions they turn into.
type DealsHandler struct {
	db  *database.DB
	pub Publisher
}

func NewDealsHandler(db *database.DB, pub Publisher) *DealsHandler {
	return &DealsHandler{db: db, pub: pub}
}

// --- Offers ---

func (h *DealsHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.db.ListOffers()
	if err != nil {
		writeStoreError(w, "offers", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(offers, query.OfferTable, query.ParseFilter(q, query.OfferTable), query.ParseSort(q)))
}

func (h *DealsHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.db.GetOffer(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "offer", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *DealsHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var o models.Offer
	if err := decodeJSON(r, &o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o.ID = ""
	if strings.TrimSpace(o.BuyerName) == "" {
		writeError(w, http.StatusBadRequest, "buyer_name is required")
		return
	}
	if o.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if o.PropertyID != "" && o.PropertyAddress == "" {
		p, err := h.db.GetProperty(o.PropertyID)
		if err != nil {
			writeStoreError(w, "property", err)
			return
		}
		o.PropertyAddress = p.Address
	}
	if err := h.db.CreateOffer(&o); err != nil {
		writeStoreError(w, "offer", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "offer_created", "offers", "offer", o.ID, o.BuyerName)
	h.pub.Publish(models.EventOfferUpdate, o)
	writeJSON(w, http.StatusCreated, o)
}

// UpdateOffer merges the body over the stored offer. Moving an offer to
// "accepted" opens a transaction for it.
func (h *DealsHandler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.db.GetOffer(id)
	if err != nil {
		writeStoreError(w, "offer", err)
		return
	}
	wasAccepted := o.Status == "accepted"
	if err := decodeJSON(r, o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o.ID = id
	if err := h.db.UpdateOffer(o); err != nil {
		writeStoreError(w, "offer", err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	h.db.LogAudit(userID, "offer_updated", "offers", "offer", o.ID, o.Status)
	h.pub.Publish(models.EventOfferUpdate, o)

	resp := map[string]interface{}{"offer": o}
	if o.Status == "accepted" && !wasAccepted {
		tx := models.Transaction{
			PropertyID:      o.PropertyID,
			PropertyAddress: o.PropertyAddress,
			BuyerName:       o.BuyerName,
			Price:           o.Amount,
		}
		if err := h.db.CreateTransaction(&tx); err != nil {
			logger.Error("Failed to open transaction for offer %s: %v", o.ID, err)
		} else {
			h.db.LogAudit(userID, "transaction_opened", "transactions", "transaction", tx.ID, o.PropertyAddress)
			h.pub.Publish(models.EventTransactionUpdate, tx)
			resp["transaction"] = tx
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Transactions ---

func (h *DealsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.db.ListTransactions()
	if err != nil {
		writeStoreError(w, "transactions", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(txs, query.TransactionTable, query.ParseFilter(q, query.TransactionTable), query.ParseSort(q)))
}

func (h *DealsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.db.GetTransaction(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *DealsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := decodeJSON(r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx.ID = ""
	if strings.TrimSpace(tx.PropertyAddress) == "" && tx.PropertyID == "" {
		writeError(w, http.StatusBadRequest, "property_id or property_address is required")
		return
	}
	if tx.PropertyAddress == "" {
		p, err := h.db.GetProperty(tx.PropertyID)
		if err != nil {
			writeStoreError(w, "property", err)
			return
		}
		tx.PropertyAddress = p.Address
	}
	if err := h.db.CreateTransaction(&tx); err != nil {
		writeStoreError(w, "transaction", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "transaction_created", "transactions", "transaction", tx.ID, tx.PropertyAddress)
	h.pub.Publish(models.EventTransactionUpdate, tx)
	writeJSON(w, http.StatusCreated, tx)
}

func (h *DealsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, err := h.db.GetTransaction(id)
	if err != nil {
		writeStoreError(w, "transaction", err)
		return
	}
	if err := decodeJSON(r, tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx.ID = id
	if err := h.db.UpdateTransaction(tx); err != nil {
		writeStoreError(w, "transaction", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "transaction_updated", "transactions", "transaction", tx.ID, tx.Stage)
	h.pub.Publish(models.EventTransactionUpdate, tx)
	writeJSON(w, http.StatusOK, tx)
}
