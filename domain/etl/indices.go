package etl

// Fixed index bodies for the three sink indices. The movies index carries the
// combined russian/english analyzer; mappings are strict so a drifting
// document shape fails loudly instead of polluting the index.

const moviesIndexBody = `{
  "settings": {
    "refresh_interval": "1s",
    "analysis": {
      "filter": {
        "english_stop": {"type": "stop", "stopwords": "_english_"},
        "english_stemmer": {"type": "stemmer", "language": "english"},
        "english_possessive_stemmer": {"type": "stemmer", "language": "possessive_english"},
        "russian_stop": {"type": "stop", "stopwords": "_russian_"},
        "russian_stemmer": {"type": "stemmer", "language": "russian"}
      },
      "analyzer": {
        "ru_en": {
          "tokenizer": "standard",
          "filter": [
            "lowercase",
            "english_stop",
            "english_stemmer",
            "english_possessive_stemmer",
            "russian_stop",
            "russian_stemmer"
          ]
        }
      }
    }
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id": {"type": "keyword"},
      "imdb_rating": {"type": "float"},
      "genres": {
        "type": "nested",
        "dynamic": "strict",
        "properties": {
          "id": {"type": "keyword"},
          "name": {"type": "text"}
        }
      },
      "title": {
        "type": "text",
        "analyzer": "ru_en",
        "fields": {"raw": {"type": "keyword"}}
      },
      "description": {"type": "text", "analyzer": "ru_en"},
      "directors_names": {"type": "text", "analyzer": "ru_en"},
      "actors_names": {"type": "text", "analyzer": "ru_en"},
      "writers_names": {"type": "text", "analyzer": "ru_en"},
      "directors": {
        "type": "nested",
        "dynamic": "strict",
        "properties": {
          "id": {"type": "keyword"},
          "name": {"type": "text", "analyzer": "ru_en"}
        }
      },
      "actors": {
        "type": "nested",
        "dynamic": "strict",
        "properties": {
          "id": {"type": "keyword"},
          "name": {"type": "text", "analyzer": "ru_en"}
        }
      },
      "writers": {
        "type": "nested",
        "dynamic": "strict",
        "properties": {
          "id": {"type": "keyword"},
          "name": {"type": "text", "analyzer": "ru_en"}
        }
      }
    }
  }
}`

const genresIndexBody = `{
  "settings": {
    "refresh_interval": "1s"
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id": {"type": "keyword"},
      "name": {
        "type": "text",
        "fields": {"raw": {"type": "keyword"}}
      }
    }
  }
}`

const personsIndexBody = `{
  "settings": {
    "refresh_interval": "1s"
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id": {"type": "keyword"},
      "name": {
        "type": "text",
        "fields": {"raw": {"type": "keyword"}}
      }
    }
  }
}`
