// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package fanout

import (
	"context"
	"time"

	"github.com/blockwatch/mempoolhub/pubsub/types"
	"github.com/blockwatch/mempoolhub/snapshot"
)

// HandleLoadingIndicatorsChange implements spec section 4.2's
// "Loading-indicator change" handler: refresh S.loadingIndicators and push
// to every connected client unconditionally (loading indicators are not
// gated by a want class, per spec section 6's list of always-on feeds).
func (e *Engine) HandleLoadingIndicatorsChange(ctx context.Context) error {
	defer e.observe("loading-indicators", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	if e.Collab.Loading == nil {
		return nil
	}
	indicators, err := e.Collab.Loading.GetLoadingIndicators(ctx)
	if err != nil {
		log.Errorf("GetLoadingIndicators failed: %v", err)
		return err
	}
	payload := marshalOrEmpty(indicators)
	if payload == "" {
		return nil
	}
	e.Shared.Set(snapshot.FieldLoadingIndicators, payload)

	for _, client := range e.snapshotClients() {
		resp := newResponse()
		resp.set(snapshot.FieldLoadingIndicators, payload)
		send(client, resp.serialize())
	}
	return nil
}

// HandlePriceChange implements spec section 4.2's "Price change" handler:
// refresh S.conversions and push to every connected client.
func (e *Engine) HandlePriceChange(ctx context.Context) error {
	defer e.observe("price-change", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	if e.Collab.Price == nil {
		return nil
	}
	prices, err := e.Collab.Price.GetLatestPrices(ctx)
	if err != nil {
		log.Errorf("GetLatestPrices failed: %v", err)
		return err
	}
	payload := marshalOrEmpty(prices)
	if payload == "" {
		return nil
	}
	e.Shared.Set(snapshot.FieldConversions, payload)

	for _, client := range e.snapshotClients() {
		resp := newResponse()
		resp.set(snapshot.FieldConversions, payload)
		send(client, resp.serialize())
	}
	return nil
}

// HandleStatisticsTick implements spec section 4.2's "Statistics tick"
// handler: recompute the 2h chart window and deliver it only to clients
// that currently want it (spec section 3's want-live-2h-chart class).
func (e *Engine) HandleStatisticsTick(ctx context.Context, window time.Duration) error {
	defer e.observe("statistics-tick", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	if e.Collab.Statistics == nil {
		return nil
	}
	stats, err := e.Collab.Statistics.RunStatistics(ctx, window)
	if err != nil {
		log.Errorf("RunStatistics failed: %v", err)
		return err
	}
	payload := marshalOrEmpty(stats)
	if payload == "" {
		return nil
	}

	for _, client := range e.snapshotClients() {
		sess := client.Session().Snapshot()
		if !sess.Want[types.WantLive2hChart] {
			continue
		}
		resp := newResponse()
		resp.set("live-2h-chart", payload)
		send(client, resp.serialize())
	}
	return nil
}

// DonationConfirmedEvent is the input to HandleDonationConfirmed.
type DonationConfirmedEvent struct {
	DonationID string
	Txid       string
	Amount     int64
}

type donationConfirmed struct {
	DonationID string `json:"donationId"`
	Txid       string `json:"txid"`
	Amount     int64  `json:"amount"`
}

// HandleDonationConfirmed implements spec section 4.2's "Donation
// confirmation" handler: notify only the client(s) currently tracking the
// matching donation ID (spec section 3's track-donation slot), then clear
// their tracking slot since a donation ID is a one-shot watch.
func (e *Engine) HandleDonationConfirmed(ctx context.Context, ev DonationConfirmedEvent) error {
	defer e.observe("donation-confirmed", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()

	payload := marshalOrEmpty(donationConfirmed{
		DonationID: ev.DonationID,
		Txid:       ev.Txid,
		Amount:     ev.Amount,
	})
	if payload == "" {
		return nil
	}

	for _, client := range e.snapshotClients() {
		sess := client.Session().Snapshot()
		if sess.TrackDonation != ev.DonationID {
			continue
		}
		resp := newResponse()
		resp.set("donationConfirmed", payload)
		send(client, resp.serialize())
		client.Session().WithLock(func() { client.Session().TrackDonation = "" })
	}
	return nil
}
