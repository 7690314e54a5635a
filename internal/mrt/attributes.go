package mrt

import "strconv"

// AttrType is a BGP path attribute type code.
type AttrType uint8

const (
	AttrOrigin                  AttrType = 1
	AttrASPath                  AttrType = 2
	AttrNextHop                 AttrType = 3
	AttrMultiExitDiscriminator  AttrType = 4
	AttrLocalPreference         AttrType = 5
	AttrAtomicAggregate         AttrType = 6
	AttrAggregator              AttrType = 7
	AttrCommunities             AttrType = 8
	AttrOriginatorID            AttrType = 9
	AttrClusterList             AttrType = 10
	AttrClusterID               AttrType = 13
	AttrMPReachNLRI             AttrType = 14
	AttrMPUnreachNLRI           AttrType = 15
	AttrExtendedCommunities     AttrType = 16
	AttrAS4Path                 AttrType = 17
	AttrAS4Aggregator           AttrType = 18
	AttrPMSITunnel              AttrType = 22
	AttrTunnelEncapsulation     AttrType = 23
	AttrTrafficEngineering      AttrType = 24
	AttrIPv6ExtendedCommunities AttrType = 25
	AttrAIGP                    AttrType = 26
	AttrPEDistinguisherLabels   AttrType = 27
	AttrBGPLSAttribute          AttrType = 29
	AttrLargeCommunities        AttrType = 32
	AttrBGPsecPath              AttrType = 33
	AttrOnlyToCustomer          AttrType = 35
	AttrSFPAttribute            AttrType = 37
	AttrBFDDiscriminator        AttrType = 38
	AttrBGPPrefixSID            AttrType = 40
	AttrAttrSet                 AttrType = 128
	AttrDevelopment             AttrType = 255
)

var attrNames = map[AttrType]string{
	AttrOrigin:                  "ORIGIN",
	AttrASPath:                  "AS_PATH",
	AttrNextHop:                 "NEXT_HOP",
	AttrMultiExitDiscriminator:  "MULTI_EXIT_DISCRIMINATOR",
	AttrLocalPreference:         "LOCAL_PREFERENCE",
	AttrAtomicAggregate:         "ATOMIC_AGGREGATE",
	AttrAggregator:              "AGGREGATOR",
	AttrCommunities:             "COMMUNITIES",
	AttrOriginatorID:            "ORIGINATOR_ID",
	AttrClusterList:             "CLUSTER_LIST",
	AttrClusterID:               "CLUSTER_ID",
	AttrMPReachNLRI:             "MP_REACHABLE_NLRI",
	AttrMPUnreachNLRI:           "MP_UNREACHABLE_NLRI",
	AttrExtendedCommunities:     "EXTENDED_COMMUNITIES",
	AttrAS4Path:                 "AS4_PATH",
	AttrAS4Aggregator:           "AS4_AGGREGATOR",
	AttrPMSITunnel:              "PMSI_TUNNEL",
	AttrTunnelEncapsulation:     "TUNNEL_ENCAPSULATION",
	AttrTrafficEngineering:      "TRAFFIC_ENGINEERING",
	AttrIPv6ExtendedCommunities: "IPV6_ADDRESS_SPECIFIC_EXTENDED_COMMUNITIES",
	AttrAIGP:                    "AIGP",
	AttrPEDistinguisherLabels:   "PE_DISTINGUISHER_LABELS",
	AttrBGPLSAttribute:          "BGP_LS_ATTRIBUTE",
	AttrLargeCommunities:        "LARGE_COMMUNITIES",
	AttrBGPsecPath:              "BGPSEC_PATH",
	AttrOnlyToCustomer:          "ONLY_TO_CUSTOMER",
	AttrSFPAttribute:            "SFP_ATTRIBUTE",
	AttrBFDDiscriminator:        "BFD_DISCRIMINATOR",
	AttrBGPPrefixSID:            "BGP_PREFIX_SID",
	AttrAttrSet:                 "ATTR_SET",
	AttrDevelopment:             "DEVELOPMENT",
}

// KnownAttrTypes lists every named attribute type in code order.
var KnownAttrTypes = []AttrType{
	AttrOrigin, AttrASPath, AttrNextHop, AttrMultiExitDiscriminator,
	AttrLocalPreference, AttrAtomicAggregate, AttrAggregator, AttrCommunities,
	AttrOriginatorID, AttrClusterList, AttrClusterID, AttrMPReachNLRI,
	AttrMPUnreachNLRI, AttrExtendedCommunities, AttrAS4Path, AttrAS4Aggregator,
	AttrPMSITunnel, AttrTunnelEncapsulation, AttrTrafficEngineering,
	AttrIPv6ExtendedCommunities, AttrAIGP, AttrPEDistinguisherLabels,
	AttrBGPLSAttribute, AttrLargeCommunities, AttrBGPsecPath, AttrOnlyToCustomer,
	AttrSFPAttribute, AttrBFDDiscriminator, AttrBGPPrefixSID, AttrAttrSet,
	AttrDevelopment,
}

func (t AttrType) String() string {
	if name, ok := attrNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t has a registered name.
func (t AttrType) Known() bool {
	_, ok := attrNames[t]
	return ok
}
