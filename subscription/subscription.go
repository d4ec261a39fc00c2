// Package subscription turns the subscribe configuration into a market data
// request and renders it for the engine.
package subscription

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"fixfeed/config"
	"fixfeed/errs"
	"fixfeed/fix"
	"fixfeed/logger"
	"fixfeed/models"
)

const (
	defaultType       = string(enum.SubscriptionRequestType_SNAPSHOT_PLUS_UPDATES)
	defaultDepth      = "0"
	defaultUpdateType = string(enum.MDUpdateType_FULL_REFRESH)
)

var newRequestID = func() string { return uuid.New().String() }

// Build resolves the configuration into a SubscriptionRequest with a fresh
// request id.
func Build(cfg config.SubscribeConfig) (models.SubscriptionRequest, error) {
	log := logger.GetLogger().WithComponent("subscription")

	symbols := SplitList(cfg.Products)
	if len(symbols) == 0 {
		return models.SubscriptionRequest{}, errs.Configuration("subscribe.products", "no products configured")
	}

	subType, err := code("subscribe.type", cfg.Type, defaultType, 0, 2)
	if err != nil {
		return models.SubscriptionRequest{}, err
	}
	updType, err := code("subscribe.update_type", cfg.UpdateType, defaultUpdateType, 0, 1)
	if err != nil {
		return models.SubscriptionRequest{}, err
	}
	depth, err := integer("subscribe.depth", cfg.Depth, defaultDepth)
	if err != nil {
		return models.SubscriptionRequest{}, err
	}
	if depth < 0 {
		return models.SubscriptionRequest{}, errs.Configuration("subscribe.depth", fmt.Sprintf("depth %d is negative", depth))
	}

	var entryTypes []models.EntryType
	for _, tok := range SplitList(cfg.EntryTypes) {
		entryTypes = append(entryTypes, models.EntryType(tok[0]))
	}
	if len(entryTypes) == 0 {
		log.Warn("no entry types configured; the venue may reject the request")
	}

	req := models.SubscriptionRequest{
		RequestID:        newRequestID(),
		Symbols:          symbols,
		SubscriptionType: models.SubscriptionType(subType),
		MarketDepth:      depth,
		UpdateType:       models.UpdateType(updType),
		EntryTypes:       entryTypes,
	}
	log.WithFields(logger.Fields{
		"md_req_id":   req.RequestID,
		"symbols":     strings.Join(symbols, ","),
		"type":        req.SubscriptionType.String(),
		"depth":       depth,
		"update_type": req.UpdateType.String(),
	}).Debug("subscription built")
	return req, nil
}

// SplitList splits on commas, trims each token and drops empty ones.
func SplitList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func integer(key, value, def string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errs.Configuration(key, fmt.Sprintf("%q is not an integer", value))
	}
	return n, nil
}

// code maps a configured integer onto its single character wire code.
func code(key, value, def string, min, max int) (byte, error) {
	n, err := integer(key, value, def)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, errs.Configuration(key, fmt.Sprintf("%d is outside %d..%d", n, min, max))
	}
	return byte('0' + n), nil
}

// Encode renders the request as a MarketDataRequest (V).
func Encode(req models.SubscriptionRequest) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.MsgType, fix.MsgTypeMarketDataRequest)

	msg.Body.Set(field.NewMDReqID(req.RequestID))
	msg.Body.SetString(tag.SubscriptionRequestType, req.SubscriptionType.String())
	msg.Body.Set(field.NewMarketDepth(req.MarketDepth))
	msg.Body.SetString(tag.MDUpdateType, req.UpdateType.String())

	types := quickfix.NewRepeatingGroup(tag.NoMDEntryTypes, quickfix.GroupTemplate{quickfix.GroupElement(tag.MDEntryType)})
	for _, et := range req.EntryTypes {
		types.Add().SetString(tag.MDEntryType, et.String())
	}
	msg.Body.SetGroup(types)

	symbols := quickfix.NewRepeatingGroup(tag.NoRelatedSym, quickfix.GroupTemplate{quickfix.GroupElement(tag.Symbol)})
	for _, s := range req.Symbols {
		symbols.Add().SetString(tag.Symbol, s)
	}
	msg.Body.SetGroup(symbols)
	return msg
}

// EncodeSecurityList renders a SecurityListRequest (x) for all securities.
func EncodeSecurityList() (*quickfix.Message, string) {
	reqID := newRequestID()
	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.MsgType, fix.MsgTypeSecurityListReq)
	msg.Body.SetString(tag.SecurityReqID, reqID)
	msg.Body.SetString(tag.SecurityListRequestType, string(enum.SecurityListRequestType_ALL_SECURITIES))
	return msg, reqID
}

// DecodeRequest reads a rendered MarketDataRequest back.
func DecodeRequest(raw string) (models.SubscriptionRequest, error) {
	r := fix.ParseRaw(raw)
	if mt := r.String(fix.TagMsgType); mt != fix.MsgTypeMarketDataRequest {
		return models.SubscriptionRequest{}, fmt.Errorf("unexpected MsgType %q", mt)
	}
	req := models.SubscriptionRequest{RequestID: r.String(fix.TagMDReqID)}
	if req.RequestID == "" {
		return req, errs.MissingField("MDReqID", fix.TagMDReqID)
	}
	if v := r.String(fix.TagSubscriptionReqType); v != "" {
		req.SubscriptionType = models.SubscriptionType(v[0])
	}
	if v := r.String(fix.TagMDUpdateType); v != "" {
		req.UpdateType = models.UpdateType(v[0])
	}
	if v := r.String(fix.TagMarketDepth); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid MarketDepth %q", v)
		}
		req.MarketDepth = depth
	}
	types, _ := r.Group(fix.TagNoMDEntryTypes)
	for _, e := range types {
		if v, ok := e.Get(fix.TagMDEntryType); ok && v != "" {
			req.EntryTypes = append(req.EntryTypes, models.EntryType(v[0]))
		}
	}
	syms, _ := r.Group(fix.TagNoRelatedSym)
	for _, e := range syms {
		if v, ok := e.Get(fix.TagSymbol); ok {
			req.Symbols = append(req.Symbols, v)
		}
	}
	return req, nil
}
