package session

import (
	"errors"
	"strconv"

	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"fixfeed/errs"
	"fixfeed/fix"
	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/models"
)

// ToAdmin signs outgoing logons. Other admin messages pass through.
func (c *Coordinator) ToAdmin(msg *quickfix.Message, id quickfix.SessionID) {
	msgType, _ := msg.Header.GetString(tag.MsgType)
	log := c.log.WithSession(id.String())
	if c.cfg.Logging.LogMessages {
		log.WithField("msg_type", msgType).Debugf("outgoing admin %s", logger.Redact(msg.String()))
	}
	if msgType != fix.MsgTypeLogon {
		return
	}

	if err := c.prepareLogon(msg, log); err != nil {
		metrics.IncSigningFailure()
		log.WithError(err).Error("logon signing failed")
		if !c.strict {
			log.Warn("lenient signing: sending logon without a valid signature")
			return
		}
		stripCredentials(msg)
		select {
		case c.signingFailures <- err:
		default:
		}
		return
	}
	log.WithField("username", c.creds.Username).Info("logon signed")
}

// prepareLogon fills the logon fields and signs them.
func (c *Coordinator) prepareLogon(msg *quickfix.Message, log *logger.Entry) error {
	hb := c.cfg.Venue.HeartBtInt
	if hb <= 0 {
		hb = 30
	}
	msg.Body.SetInt(tag.HeartBtInt, hb)
	msg.Body.SetInt(tag.EncryptMethod, 0)

	if c.creds.Passphrase == "" {
		return errs.Signing("credentials", errs.MissingField("passphrase", 0))
	}
	if c.creds.Username == "" {
		return errs.Signing("credentials", errs.MissingField("username", 0))
	}
	msg.Body.SetString(tag.Password, c.creds.Passphrase)
	msg.Body.SetString(tag.Username, c.creds.Username)

	if c.creds.DefaultApplVerID != "" {
		msg.Body.SetString(tag.DefaultApplVerID, c.creds.DefaultApplVerID)
	}
	if c.cfg.Venue.ResetSeqNumOnLogon {
		msg.Body.SetString(tag.ResetSeqNumFlag, "Y")
	}

	if !msg.Header.Has(tag.SendingTime) {
		now := c.now().UTC().Format(c.cfg.Venue.SendingTimeLayout())
		msg.Header.SetString(tag.SendingTime, now)
		logger.IncrementEntryAnomaly()
		log.WithField("sending_time", now).Warn("logon had no SendingTime; using current time")
	}

	lc, err := logonContext(msg)
	if err != nil {
		return errs.Signing("extract", err)
	}
	signature, err := c.signer.Sign(lc)
	if err != nil {
		return errs.Signing("sign", err)
	}

	msg.Body.SetInt(tag.RawDataLength, len(signature))
	msg.Body.SetString(tag.RawData, signature)
	return nil
}

// logonContext reads the six signed values back from the message.
func logonContext(msg *quickfix.Message) (models.LogonContext, error) {
	var lc models.LogonContext
	var err error
	read := func(fm *quickfix.FieldMap, t quickfix.Tag, name string) string {
		if err != nil {
			return ""
		}
		v, ferr := fm.GetString(t)
		if ferr != nil || v == "" {
			err = errs.MissingField(name, int(t))
		}
		return v
	}
	lc.SendingTime = read(&msg.Header.FieldMap, tag.SendingTime, "SendingTime")
	lc.MsgType = read(&msg.Header.FieldMap, tag.MsgType, "MsgType")
	lc.MsgSeqNum = read(&msg.Header.FieldMap, tag.MsgSeqNum, "MsgSeqNum")
	lc.SenderCompID = read(&msg.Header.FieldMap, tag.SenderCompID, "SenderCompID")
	lc.TargetCompID = read(&msg.Header.FieldMap, tag.TargetCompID, "TargetCompID")
	lc.Passphrase = read(&msg.Body.FieldMap, tag.Password, "Password")
	if err != nil {
		return lc, err
	}
	if _, perr := strconv.Atoi(lc.MsgSeqNum); perr != nil {
		return lc, errors.New("MsgSeqNum is not numeric")
	}
	return lc, nil
}

func stripCredentials(msg *quickfix.Message) {
	for _, t := range []quickfix.Tag{tag.Password, tag.Username, tag.RawData, tag.RawDataLength} {
		msg.Body.Remove(t)
	}
}

// ToApp stamps ApplVerID on FIXT.1.1 sessions.
func (c *Coordinator) ToApp(msg *quickfix.Message, id quickfix.SessionID) error {
	if id.BeginString == quickfix.BeginStringFIXT11 && c.creds.DefaultApplVerID != "" {
		msg.Header.SetString(tag.ApplVerID, c.creds.DefaultApplVerID)
	}
	if c.cfg.Logging.LogMessages {
		msgType, _ := msg.Header.GetString(tag.MsgType)
		c.log.WithSession(id.String()).WithField("msg_type", msgType).Debugf("outgoing app %s", logger.Redact(msg.String()))
	}
	return nil
}
