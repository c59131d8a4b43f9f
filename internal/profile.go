package internal

import (
	"fmt"
	"math/rand"

	"github.com/pkg/profile"
	"github.com/spf13/viper"
)

type ProfileStopper interface {
	Stop()
}

var profileModes = map[string]func(*profile.Profile){
	"cpu":            profile.CPUProfile,
	"mem":            profile.MemProfile,
	"mutex":          profile.MutexProfile,
	"block":          profile.BlockProfile,
	"threadcreation": profile.ThreadcreationProfile,
	"trace":          profile.TraceProfile,
	"goroutine":      profile.GoroutineProfile,
}

// Profile starts profiling of a sampled share of invocations.
// It returns nil stopper when PROFILE_SAMPLING_RATIO is not set or invocation is not sampled.
func Profile() (ProfileStopper, error) {
	if !viper.IsSet(ProfileSamplingRatio) {
		return nil, nil
	}

	samplingRatio, err := GetFloat64Setting(ProfileSamplingRatio)
	if err != nil {
		return nil, err
	}
	if rand.Float64() >= samplingRatio {
		return nil, nil
	}

	return startProfile(viper.GetString(ProfileMode), viper.GetString(ProfilePath))
}

func startProfile(mode, path string, extra ...func(*profile.Profile)) (ProfileStopper, error) {
	var opts []func(*profile.Profile)
	if mode != "" {
		modeOpt, ok := profileModes[mode]
		if !ok {
			return nil, fmt.Errorf("unknown %s: '%s'", ProfileMode, mode)
		}
		opts = append(opts, modeOpt)
	}
	if path != "" {
		opts = append(opts, profile.ProfilePath(path))
	}
	opts = append(opts, extra...)

	return profile.Start(opts...), nil
}
