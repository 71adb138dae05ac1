// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"

	"github.com/luxfi/dap-aggregator/internal/bhex"
	"github.com/luxfi/dap-aggregator/messages"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape cmd/dap-aggd loads; ids are
// base64url strings on disk and converted to the 32-byte wire types here.
type fileConfig struct {
	TaskID             string `yaml:"task_id"`
	Version            string `yaml:"version"`
	QueryType          string `yaml:"query_type"`
	TimePrecision      uint64 `yaml:"time_precision"`
	MinBatchSize       uint64 `yaml:"min_batch_size"`
	TaskStart          uint64 `yaml:"task_start"`
	TaskExpiration     uint64 `yaml:"task_expiration"`
	ReportStorageEpoch uint64 `yaml:"report_storage_epoch"`
	MaxFutureSkew      uint64 `yaml:"max_future_skew"`
	CollectorHpkeID    uint8  `yaml:"collector_hpke_id"`
	CollectorHpkeKey   string `yaml:"collector_hpke_public_key"`
	VdafVerifyKey      string `yaml:"vdaf_verify_key"`
}

// LoadFile reads a TaskConfig from a YAML file.
func LoadFile(path string) (TaskConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return TaskConfig{}, err
	}
	return Parse(b)
}

// Parse decodes a TaskConfig from YAML bytes and validates it.
func Parse(b []byte) (TaskConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return TaskConfig{}, err
	}

	taskIDBytes, err := bhex.Decode(fc.TaskID)
	if err != nil {
		return TaskConfig{}, err
	}
	var taskID messages.TaskID
	copy(taskID[:], taskIDBytes)

	c := TaskConfig{
		TaskID:             taskID,
		TimePrecision:      messages.Time(fc.TimePrecision),
		MinBatchSize:       fc.MinBatchSize,
		TaskStart:          messages.Time(fc.TaskStart),
		TaskExpiration:     messages.Time(fc.TaskExpiration),
		ReportStorageEpoch: messages.Time(fc.ReportStorageEpoch),
		MaxFutureSkew:      messages.Time(fc.MaxFutureSkew),
	}
	switch fc.Version {
	case "latest", "":
		c.Version = messages.DraftLatest
	case "draft02":
		c.Version = messages.Draft02
	default:
		return TaskConfig{}, ErrInvalidVersion
	}
	switch fc.QueryType {
	case "fixed_size":
		c.QueryType = QueryFixedSize
	default:
		c.QueryType = QueryTimeInterval
	}
	if fc.VdafVerifyKey != "" {
		c.VdafVerifyKey, err = bhex.Decode(fc.VdafVerifyKey)
		if err != nil {
			return TaskConfig{}, err
		}
	}
	if fc.CollectorHpkeKey != "" {
		pub, err := bhex.Decode(fc.CollectorHpkeKey)
		if err != nil {
			return TaskConfig{}, err
		}
		c.CollectorHpkeConfig = messages.HpkeConfig{
			ID:        fc.CollectorHpkeID,
			KemID:     messages.KemX25519HkdfSha256,
			KdfID:     messages.KdfHkdfSha256,
			AeadID:    messages.AeadAes128Gcm,
			PublicKey: pub,
		}
	}
	if err := c.Validate(); err != nil {
		return TaskConfig{}, err
	}
	return c, nil
}
