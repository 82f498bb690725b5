/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"context"
	"encoding/json"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/friendsincode/grimnir_radio/internal/model"
)

// dispatch unmarshals methodBody into the method-specific argument struct
// for methodType and invokes the matching subsystem call, returning the
// value to wrap into a response's "Ok" (or the error to wrap into "Err").
// Subscribe is intercepted by the caller before reaching here.
func (s *Server) dispatch(ctx context.Context, methodType string, methodBody json.RawMessage) (any, error) {
	switch methodType {
	case "GetState":
		return s.getState(), nil

	case "GetChannels":
		return channelsPayload(s.mixer.AllChannelStates()), nil

	case "GetDeviceStatus":
		return s.getDeviceStatus(), nil

	case "GetAvailableOutputs":
		return outputsPayload(s.engine.AvailableOutputs()), nil

	case "SetChannelVolume":
		var args struct {
			Channel string  `json:"channel"`
			Mix     string  `json:"mix"`
			Volume  float64 `json:"volume"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.mixer.SetChannelVolume(ctx, model.Channel(args.Channel), model.Mix(args.Mix), args.Volume)

	case "SetChannelMute":
		var args struct {
			Channel string `json:"channel"`
			Mix     string `json:"mix"`
			Muted   bool   `json:"muted"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.mixer.SetChannelMute(ctx, model.Channel(args.Channel), model.Mix(args.Mix), args.Muted)

	case "SetMasterVolume":
		var args struct {
			Mix    string  `json:"mix"`
			Volume float64 `json:"volume"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.mixer.SetMasterVolume(ctx, model.Mix(args.Mix), args.Volume)

	case "SetMasterMute":
		var args struct {
			Mix   string `json:"mix"`
			Muted bool   `json:"muted"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.mixer.SetMasterMute(ctx, model.Mix(args.Mix), args.Muted)

	case "SetMonitorOutputDevice":
		var args struct {
			NodeID uint32 `json:"nodeId"`
			Name   string `json:"name"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.mixer.SetMonitorOutputDevice(ctx, args.NodeID, args.Name)

	case "SetAppRoute":
		var args struct {
			Binary     string `json:"binary"`
			Channel    string `json:"channel"`
			Persistent bool   `json:"persistent"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.router.SetAppRoute(ctx, args.Binary, model.Channel(args.Channel), args.Persistent)

	case "RemoveAppRoute":
		var args struct {
			Binary string `json:"binary"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.router.RemoveAppRoute(ctx, args.Binary)

	case "ListProfiles":
		profiles, err := s.store.ListProfiles(ctx)
		if err != nil {
			return nil, ipcerr.PersistenceErr("profile_list_failed", "listing profiles", err)
		}
		return profilesPayload(profiles), nil

	case "SaveProfile":
		var args struct {
			Name string `json:"name"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.saveProfile(ctx, args.Name)

	case "LoadProfile":
		var args struct {
			Name string `json:"name"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.loadProfile(ctx, args.Name)

	case "DeleteProfile":
		var args struct {
			Name string `json:"name"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		if err := s.store.DeleteProfile(ctx, args.Name); err != nil {
			return nil, ipcerr.PersistenceErr("profile_delete_failed", "deleting profile "+args.Name, err)
		}
		s.bus.Publish(events.EventProfileListChanged, events.Payload{})
		return nil, nil

	case "SetMicGain":
		var args struct {
			Value float64 `json:"value"`
		}
		if err := unmarshalArgs(methodBody, &args); err != nil {
			return nil, err
		}
		return nil, s.device.SetGain(ctx, model.ClampVolume(args.Value))

	case "ToggleMicMute":
		return nil, s.device.ToggleMute(ctx)

	case "Shutdown":
		return nil, nil

	default:
		return nil, ipcerr.TransportErr("unknown_method", "unrecognized method type: "+methodType, nil)
	}
}

func unmarshalArgs(body json.RawMessage, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return ipcerr.TransportErr("malformed_args", "failed to decode method arguments", err)
	}
	return nil
}
