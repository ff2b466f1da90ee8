package chunked

// Package chunked splits large lists of contract reads into bounded chunks.
//
// Each chunk is polled through its own multicall subscription at its own
// cadence and the chunk states are merged back in input order, so the
// caller sees one state per input position.
//
// Example configuration:
//
//	{
//	  "multicall": {
//	    "pageSize": 50,
//	    "maxChunks": 6,
//	    "softCeiling": 300,
//	    "extendedMaxChunks": 14,
//	    "extendedSoftCeiling": 700,
//	    "overflow": "truncate"
//	  }
//	}
